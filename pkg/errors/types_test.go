package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeNotFound, "no element matched locator")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != CodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, CodeNotFound)
	}

	if err.Message != "no element matched locator" {
		t.Errorf("Message = %v, want 'no element matched locator'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}

	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("connection refused")
	err := Wrap(underlying, CodeEngine, "browser runtime unavailable")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if err.Code != CodeEngine {
		t.Errorf("Code = %v, want %v", err.Code, CodeEngine)
	}

	if !strings.Contains(err.Error(), "connection refused") {
		t.Error("Error string should include underlying error")
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, CodeInternal, "test"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWithContext(t *testing.T) {
	err := New(CodeAmbiguous, "locator matched multiple elements").
		WithContext("locator", "//button").
		WithContext("matches", 3)

	msg := err.Error()
	if !strings.Contains(msg, "locator") {
		t.Errorf("Error() = %q, want context keys included", msg)
	}
}

func TestGetCode_Wrapped(t *testing.T) {
	inner := New(CodeWaitTimeout, "condition never held")
	outer := fmt.Errorf("action 3: %w", inner)

	if got := GetCode(outer); got != CodeWaitTimeout {
		t.Errorf("GetCode = %v, want %v", got, CodeWaitTimeout)
	}

	if !IsCode(outer, CodeWaitTimeout) {
		t.Error("IsCode should unwrap stdlib-wrapped errors")
	}
}

func TestGetCode_Unknown(t *testing.T) {
	if got := GetCode(errors.New("plain")); got != CodeInternal {
		t.Errorf("GetCode = %v, want %v", got, CodeInternal)
	}

	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %v, want empty", got)
	}
}

func TestIsRetryable(t *testing.T) {
	err := New(CodeEngine, "session crashed").WithRetryable(true)

	if !IsRetryable(err) {
		t.Error("expected retryable")
	}

	wrapped := fmt.Errorf("invocation: %w", err)
	if !IsRetryable(wrapped) {
		t.Error("retryable flag should survive wrapping")
	}

	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
