// Package errors defines the coded error taxonomy used across crawlerd.
// Action-level codes are recorded in result traces; task-level codes decide
// whether a caller should retry an invocation.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies a failure class.
type Code string

const (
	// Pre-execution failures. The task itself is malformed; redelivering
	// the same payload cannot succeed.
	CodeValidation Code = "VALIDATION"

	// Action-level failures, recorded in the result trace.
	CodeNavigationTimeout Code = "NAVIGATION_TIMEOUT"
	CodeWaitTimeout       Code = "WAIT_TIMEOUT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAmbiguous         Code = "AMBIGUOUS"
	CodeNotFillable       Code = "NOT_FILLABLE"
	CodeNotInteractable   Code = "NOT_INTERACTABLE"
	CodeNoSuchOption      Code = "NO_SUCH_OPTION"
	CodeTaskTimeout       Code = "TASK_TIMEOUT"

	// Collaborator failures.
	CodeStorage         Code = "STORAGE"
	CodeSecretRetrieval Code = "SECRET_RETRIEVAL"

	// Engine faults. The worker broke, not the task; callers should retry.
	CodeEngine Code = "ENGINE"

	// Generic internal errors.
	CodeInternal Code = "INTERNAL"
)

// Error is a structured crawlerd error.
type Error struct {
	Code       Code
	Message    string
	Underlying error
	Context    map[string]any
	Stack      []Frame
	Retryable  bool
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// New creates a new structured error.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with crawlerd error context.
// Returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
		Stack:      captureStack(2),
	}
}

// WithContext adds a context key-value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error is retryable.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// StackTrace returns a formatted stack trace.
func (e *Error) StackTrace() string {
	var sb strings.Builder

	sb.WriteString("Stack trace:\n")
	for i, frame := range e.Stack {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, frame.Function))
		sb.WriteString(fmt.Sprintf("     %s:%d\n", frame.File, frame.Line))
	}

	return sb.String()
}

// captureStack captures the current call stack.
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr

	n := runtime.Callers(skip+1, pcs[:])
	frames := make([]Frame, 0, n)

	for i := 0; i < n; i++ {
		pc := pcs[i]
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		file, line := fn.FileLine(pc)

		frames = append(frames, Frame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}

// IsCode checks if an error (or any error it wraps) carries a specific code.
func IsCode(err error, code Code) bool {
	var cerr *Error
	if !stderrors.As(err, &cerr) {
		return false
	}
	return cerr.Code == code
}

// GetCode extracts the code from an error, unwrapping as needed.
// Unrecognized errors map to CodeInternal.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	var cerr *Error
	if !stderrors.As(err, &cerr) {
		return CodeInternal
	}
	return cerr.Code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var cerr *Error
	if !stderrors.As(err, &cerr) {
		return false
	}
	return cerr.Retryable
}
