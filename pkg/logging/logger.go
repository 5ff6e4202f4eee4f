// Package logging provides the structured JSONL event logger used across
// crawlerd. Events carry a category, a task ID, and a free-form details map.
//
// Credential material must never reach a log line. Secret values are carried
// in secrets.Secret, which marshals redacted, so placing one in Details is
// safe; placing a revealed string is not.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log.
type Category string

const (
	CategoryTask       Category = "task"
	CategoryAction     Category = "action"
	CategoryBrowser    Category = "browser"
	CategoryQueue      Category = "queue"
	CategorySecrets    Category = "secrets"
	CategoryStorage    Category = "storage"
	CategoryAPI        Category = "api"
	CategoryWorker     Category = "worker"
	CategoryValidation Category = "validation"
)

// Event represents a structured log event.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Logger writes structured events as JSONL.
type Logger struct {
	shared *sink

	taskID   string
	workerID string
}

// sink is the write side shared by a Logger and its derived loggers.
type sink struct {
	mu        sync.Mutex
	out       io.Writer
	errorFile *os.File
	minLevel  Level
}

// New creates a logger writing to out. A nil out defaults to stderr.
func New(out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{shared: &sink{out: out, minLevel: LevelInfo}}
}

// NewFileLogger creates a logger that appends to <baseDir>/crawler.jsonl and
// mirrors error events to <baseDir>/errors.jsonl.
func NewFileLogger(baseDir string) (*Logger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	mainFile, err := os.OpenFile(
		filepath.Join(baseDir, "crawler.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open crawler log: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	return &Logger{shared: &sink{out: mainFile, errorFile: errorFile, minLevel: LevelInfo}}, nil
}

// SetMinLevel sets the minimum log level.
func (l *Logger) SetMinLevel(level Level) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	l.shared.minLevel = level
}

// WithTask returns a derived logger stamping every event with taskID.
func (l *Logger) WithTask(taskID string) *Logger {
	return &Logger{shared: l.shared, taskID: taskID, workerID: l.workerID}
}

// WithWorker returns a derived logger stamping every event with workerID.
func (l *Logger) WithWorker(workerID string) *Logger {
	return &Logger{shared: l.shared, taskID: l.taskID, workerID: workerID}
}

// Log writes an event.
func (l *Logger) Log(event Event) error {
	s := l.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.TaskID == "" {
		event.TaskID = l.taskID
	}
	if event.WorkerID == "" {
		event.WorkerID = l.workerID
	}

	if !s.shouldLog(event.Level) {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("failed to write log event: %w", err)
	}

	if event.Level == LevelError && s.errorFile != nil {
		if _, err := s.errorFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to error log: %w", err)
		}
	}

	return nil
}

func (s *sink) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[s.minLevel]
}

// Debug logs a debug event.
func (l *Logger) Debug(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelDebug, Category: category, EventType: eventType, Message: message, Details: details})
}

// Info logs an info event.
func (l *Logger) Info(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelInfo, Category: category, EventType: eventType, Message: message, Details: details})
}

// Warn logs a warning event.
func (l *Logger) Warn(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelWarn, Category: category, EventType: eventType, Message: message, Details: details})
}

// Error logs an error event.
func (l *Logger) Error(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelError, Category: category, EventType: eventType, Message: message, Details: details})
}

// Close closes any underlying log files.
func (l *Logger) Close() error {
	s := l.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	if closer, ok := s.out.(io.Closer); ok && closer != os.Stderr {
		if err := closer.Close(); err != nil {
			lastErr = err
		}
	}
	if s.errorFile != nil {
		if err := s.errorFile.Close(); err != nil {
			lastErr = err
		}
		s.errorFile = nil
	}
	return lastErr
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return New(io.Discard)
}
