package artifact

import (
	"context"
	"os"
	"path/filepath"

	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
)

// LocalStore writes artifacts under a base directory, using the same key
// layout as the S3 store. Used by the `run` subcommand and in development.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a filesystem-backed store rooted at baseDir.
func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

// Put implements Store.
func (s *LocalStore) Put(ctx context.Context, taskID, name string, data []byte, contentType string) (Ref, error) {
	key := keyFor(taskID, name, contentType)
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Ref{}, crawlerrors.Wrap(err, crawlerrors.CodeStorage, "creating artifact directory").
			WithContext("path", path)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Ref{}, crawlerrors.Wrap(err, crawlerrors.CodeStorage, "writing artifact").
			WithContext("path", path)
	}
	return Ref{Name: name, Key: key, URL: "file://" + path}, nil
}
