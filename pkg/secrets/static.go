package secrets

import (
	"context"
	"sync"
)

// Static is an in-memory Provider for tests and local development.
type Static struct {
	mu    sync.Mutex
	creds map[string]Credentials

	// Err, when set, fails every Get. Simulates a secrets outage.
	Err error

	// Calls counts Get invocations, for once-per-task assertions.
	Calls int
}

// NewStatic creates a provider serving the given credentials.
func NewStatic(creds map[string]Credentials) *Static {
	if creds == nil {
		creds = make(map[string]Credentials)
	}
	return &Static{creds: creds}
}

// Set registers credentials under a reference.
func (s *Static) Set(ref string, creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[ref] = creds
}

// Get implements Provider.
func (s *Static) Get(ctx context.Context, ref string) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return Credentials{}, s.Err
	}
	creds, ok := s.creds[ref]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}
