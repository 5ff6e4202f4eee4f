package browser

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable       = errors.New("browser runtime unavailable")
	ErrSessionClosed     = errors.New("browser session closed")
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrWaitTimeout       = errors.New("wait timeout")
	ErrNotFound          = errors.New("no element matched locator")
	ErrAmbiguous         = errors.New("locator matched more than one element")
	ErrNotFillable       = errors.New("element is not fillable")
	ErrNotInteractable   = errors.New("element is not interactable")
	ErrNoSuchOption      = errors.New("select has no such option")
)

// SessionError wraps adapter-level failures with a stable code for
// classification above the port boundary.
type SessionError struct {
	Code    string
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("browser error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("browser error [%s]: %s", e.Code, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(code, message string) *SessionError {
	return &SessionError{Code: code, Message: message}
}

// WrapSessionError wraps an existing error with adapter context.
func WrapSessionError(code, message string, err error) *SessionError {
	return &SessionError{Code: code, Message: message, Err: err}
}

// IsEngineFault reports whether the error indicates a broken worker rather
// than a page that rejected an action. Engine faults are retryable by the
// queue caller.
func IsEngineFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrSessionClosed) {
		return true
	}
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		switch sessErr.Code {
		case "crashed", "connection_lost", "unavailable", "launch_failed":
			return true
		}
	}
	return false
}
