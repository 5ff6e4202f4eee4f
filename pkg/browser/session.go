package browser

import "context"

// Runtime manages browser sessions. Adapters own the underlying engine;
// the execution engine only sees these ports.
type Runtime interface {
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
	Close() error
}

// Session is one live browser context. All waits are bounded by the
// caller's context; implementations must not block past cancellation.
type Session interface {
	ID() string

	// Navigate loads a URL and waits for the settle condition.
	Navigate(ctx context.Context, url string, opts NavigateOptions) error

	// Query returns every element matching the locator, in document order.
	Query(ctx context.Context, loc Locator) ([]Element, error)

	// WaitFor polls until the locator reaches the given state or the
	// context expires.
	WaitFor(ctx context.Context, loc Locator, state WaitState) error

	// Screenshot captures the viewport, or the whole page when fullPage
	// is set.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Element is a handle on one resolved page element.
type Element interface {
	// Fill clears any existing value and sets a new one.
	Fill(ctx context.Context, value string) error

	Click(ctx context.Context) error

	// SelectOption picks an option by value, or by visible label when
	// byLabel is set.
	SelectOption(ctx context.Context, value string, byLabel bool) error

	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
