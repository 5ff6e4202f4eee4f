// Package config loads crawlerd configuration: built-in defaults, an
// optional YAML file, then CRAWLERD_* environment overrides, in that
// order. Later layers win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete crawlerd configuration.
type Config struct {
	Queue   QueueConfig   `yaml:"queue"`
	Storage StorageConfig `yaml:"storage"`
	Secrets SecretsConfig `yaml:"secrets"`
	Browser BrowserConfig `yaml:"browser"`
	Worker  WorkerConfig  `yaml:"worker"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "5m" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// QueueConfig controls the NATS transport.
type QueueConfig struct {
	URL               string   `yaml:"url"`
	Name              string   `yaml:"name"`
	ResultSubject     string   `yaml:"result_subject"`
	DeadLetterSubject string   `yaml:"dead_letter_subject"`
	AckWait           Duration `yaml:"ack_wait"`
	MaxDeliver        int      `yaml:"max_deliver"`
}

// StorageConfig controls the artifact store.
type StorageConfig struct {
	// Backend is "s3" or "local".
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	// Dir is the base directory for the local backend.
	Dir string `yaml:"dir"`
}

// SecretsConfig controls credential retrieval.
type SecretsConfig struct {
	// Backend is "aws" or "none".
	Backend string `yaml:"backend"`
	Region  string `yaml:"region"`
	// DefaultRef resolves login actions whose secret_ref is empty.
	DefaultRef string `yaml:"default_ref"`
}

// BrowserConfig controls the Chrome runtime.
type BrowserConfig struct {
	ExecPath  string `yaml:"exec_path"`
	Headful   bool   `yaml:"headful"`
	NoSandbox bool   `yaml:"no_sandbox"`
	UserAgent string `yaml:"user_agent"`
}

// WorkerConfig controls task execution policy.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`

	// DefaultTimeoutMS applies when a task omits config.timeout_ms.
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`

	// ContinueOnReadOnly lets failed extract/screenshot actions with no
	// explicit continue_on_error keep the task going.
	ContinueOnReadOnly bool `yaml:"continue_on_read_only"`

	// BackfillSkipped adds skipped entries for unexecuted actions after
	// an abort.
	BackfillSkipped bool `yaml:"backfill_skipped"`

	// PersistReports writes every report to the artifact store.
	PersistReports bool `yaml:"persist_reports"`
}

// APIConfig controls the submission server.
type APIConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig controls the structured log sink.
type LoggingConfig struct {
	// Dir receives crawler.jsonl and errors.jsonl; empty logs to stderr.
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			URL:               "nats://127.0.0.1:4222",
			Name:              "tasks",
			ResultSubject:     "crawlerd.results.done",
			DeadLetterSubject: "crawlerd.results.dead",
			AckWait:           Duration(5 * time.Minute),
			MaxDeliver:        5,
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     "artifacts",
		},
		Secrets: SecretsConfig{
			Backend: "none",
		},
		Worker: WorkerConfig{
			Concurrency:      2,
			DefaultTimeoutMS: 30000,
			PersistReports:   true,
		},
		API: APIConfig{
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration. path may be empty; a missing
// file at an explicit path is an error, but env overrides still apply
// without one.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.DefaultTimeoutMS <= 0 {
		return fmt.Errorf("worker.default_timeout_ms must be positive, got %d", c.Worker.DefaultTimeoutMS)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the local backend")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is unknown", c.Storage.Backend)
	}
	switch c.Secrets.Backend {
	case "aws", "none":
	default:
		return fmt.Errorf("secrets.backend %q is unknown", c.Secrets.Backend)
	}
	if c.Queue.AckWait.Std() < time.Duration(c.Worker.DefaultTimeoutMS)*time.Millisecond {
		return fmt.Errorf("queue.ack_wait %s is shorter than the default task timeout", c.Queue.AckWait.Std())
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("CRAWLERD_NATS_URL", &cfg.Queue.URL)
	setString("CRAWLERD_QUEUE_NAME", &cfg.Queue.Name)
	setString("CRAWLERD_RESULT_SUBJECT", &cfg.Queue.ResultSubject)
	setString("CRAWLERD_DEAD_LETTER_SUBJECT", &cfg.Queue.DeadLetterSubject)

	setString("CRAWLERD_STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("CRAWLERD_S3_BUCKET", &cfg.Storage.Bucket)
	setString("CRAWLERD_S3_REGION", &cfg.Storage.Region)
	setString("CRAWLERD_ARTIFACT_DIR", &cfg.Storage.Dir)

	setString("CRAWLERD_SECRETS_BACKEND", &cfg.Secrets.Backend)
	setString("CRAWLERD_SECRETS_REGION", &cfg.Secrets.Region)
	setString("CRAWLERD_SECRETS_REF", &cfg.Secrets.DefaultRef)

	setString("CRAWLERD_CHROME_PATH", &cfg.Browser.ExecPath)
	setBool("CRAWLERD_CHROME_HEADFUL", &cfg.Browser.Headful)
	setBool("CRAWLERD_CHROME_NO_SANDBOX", &cfg.Browser.NoSandbox)
	setString("CRAWLERD_USER_AGENT", &cfg.Browser.UserAgent)

	setInt("CRAWLERD_WORKER_CONCURRENCY", &cfg.Worker.Concurrency)
	setInt("CRAWLERD_DEFAULT_TIMEOUT_MS", &cfg.Worker.DefaultTimeoutMS)
	setBool("CRAWLERD_CONTINUE_ON_READ_ONLY", &cfg.Worker.ContinueOnReadOnly)
	setBool("CRAWLERD_BACKFILL_SKIPPED", &cfg.Worker.BackfillSkipped)
	setBool("CRAWLERD_PERSIST_REPORTS", &cfg.Worker.PersistReports)

	setString("CRAWLERD_API_ADDRESS", &cfg.API.Address)
	setString("CRAWLERD_LOG_DIR", &cfg.Logging.Dir)
	setString("CRAWLERD_LOG_LEVEL", &cfg.Logging.Level)
}
