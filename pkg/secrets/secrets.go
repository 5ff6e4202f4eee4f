// Package secrets retrieves website credentials for login actions. Values
// travel inside the Secret type, which redacts itself in every formatting
// and marshaling path, so a credential reaching a log line or a persisted
// report is a type error rather than a convention violation.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no credentials exist for a reference.
var ErrNotFound = errors.New("credentials not found")

// Secret is a string that never renders its value. Use Reveal at the one
// point where the raw value is actually consumed.
type Secret string

// String implements fmt.Stringer, redacted.
func (Secret) String() string { return "***" }

// GoString keeps %#v output redacted too.
func (Secret) GoString() string { return `secrets.Secret("***")` }

// MarshalJSON renders the redaction marker, never the value.
func (Secret) MarshalJSON() ([]byte, error) { return []byte(`"***"`), nil }

// Reveal returns the raw value.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s == "" }

// Credentials are one site's stored login credentials.
type Credentials struct {
	Username Secret `json:"username"`
	Password Secret `json:"password"`

	// OTPSecret is present when the site needs a second factor.
	OTPSecret Secret `json:"otp_secret,omitempty"`
}

// Provider is the secrets collaborator. Consulted once per task, before
// any navigation, so a retrieval failure is the cheapest possible abort.
type Provider interface {
	Get(ctx context.Context, ref string) (Credentials, error)
}
