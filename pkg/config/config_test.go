package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Queue.URL)
	assert.Equal(t, "tasks", cfg.Queue.Name)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 30000, cfg.Worker.DefaultTimeoutMS)
	assert.True(t, cfg.Worker.PersistReports)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  url: nats://queue.internal:4222
  ack_wait: 10m
storage:
  backend: s3
  bucket: crawl-artifacts
  region: us-east-1
worker:
  concurrency: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://queue.internal:4222", cfg.Queue.URL)
	assert.Equal(t, 10*time.Minute, cfg.Queue.AckWait.Std())
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "crawl-artifacts", cfg.Storage.Bucket)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	// Untouched sections keep their defaults.
	assert.Equal(t, "crawlerd.results.done", cfg.Queue.ResultSubject)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
worker:
  concurrency: 8
`), 0o600))

	t.Setenv("CRAWLERD_WORKER_CONCURRENCY", "16")
	t.Setenv("CRAWLERD_S3_BUCKET", "env-bucket")
	t.Setenv("CRAWLERD_CHROME_NO_SANDBOX", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Worker.Concurrency)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
	assert.True(t, cfg.Browser.NoSandbox)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.Worker.DefaultTimeoutMS = 0 }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3"; c.Storage.Bucket = "" }},
		{"unknown secrets backend", func(c *Config) { c.Secrets.Backend = "vault" }},
		{"ack wait below task timeout", func(c *Config) { c.Queue.AckWait = Duration(time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
