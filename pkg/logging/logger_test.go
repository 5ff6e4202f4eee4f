package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	err := logger.Info(CategoryTask, "task_started", "starting task", map[string]any{
		"url": "https://example.com",
	})
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, LevelInfo, event.Level)
	assert.Equal(t, CategoryTask, event.Category)
	assert.Equal(t, "task_started", event.EventType)
	assert.Equal(t, "https://example.com", event.Details["url"])
	assert.False(t, event.Timestamp.IsZero())
}

func TestLogger_MinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	require.NoError(t, logger.Debug(CategoryAction, "resolve", "resolving", nil))
	assert.Zero(t, buf.Len(), "debug events are filtered at the default level")

	logger.SetMinLevel(LevelDebug)
	require.NoError(t, logger.Debug(CategoryAction, "resolve", "resolving", nil))
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithTask(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf).WithTask("task-abc123")

	require.NoError(t, logger.Info(CategoryAction, "action_ok", "", nil))

	var event Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "task-abc123", event.TaskID)
}

type redacted struct{}

func (redacted) MarshalJSON() ([]byte, error) { return []byte(`"***"`), nil }

func TestLogger_RedactedDetailsStayRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	require.NoError(t, logger.Info(CategorySecrets, "credentials_loaded", "", map[string]any{
		"password": redacted{},
	}))

	line := buf.String()
	assert.Contains(t, line, `"password":"***"`)
	assert.False(t, strings.Contains(line, "hunter2"))
}
