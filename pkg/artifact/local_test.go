package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutScreenshot(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	ref, err := store.Put(context.Background(), "task-1", "s1", []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "s1", ref.Name)
	assert.True(t, strings.HasPrefix(ref.Key, "screenshots/"), "key = %s", ref.Key)
	assert.True(t, strings.HasSuffix(ref.Key, "/task-1/s1.png"), "key = %s", ref.Key)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ref.Key)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalStore_PutReport(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	ref, err := store.Put(context.Background(), "task-2", "report", []byte(`{}`), "application/json")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref.Key, "/task-2.json"), "key = %s", ref.Key)
}
