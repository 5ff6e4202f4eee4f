package artifact

import (
	"context"
	"sync"

	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// PutErr, when set, fails every Put. Simulates a storage outage.
	PutErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, taskID, name string, data []byte, contentType string) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.PutErr != nil {
		return Ref{}, crawlerrors.Wrap(s.PutErr, crawlerrors.CodeStorage, "memory store put failed")
	}

	key := keyFor(taskID, name, contentType)
	s.objects[key] = append([]byte(nil), data...)
	return Ref{Name: name, Key: key, URL: "mem://" + key}, nil
}

// Get returns a stored object for assertions.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
