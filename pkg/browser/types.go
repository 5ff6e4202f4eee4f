package browser

import (
	"fmt"
	"time"
)

// WaitUntil names the navigation settle condition.
type WaitUntil string

const (
	WaitUntilLoad             WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle      WaitUntil = "networkidle"
)

// Valid reports whether w is a known settle condition.
func (w WaitUntil) Valid() bool {
	switch w {
	case WaitUntilLoad, WaitUntilDOMContentLoaded, WaitUntilNetworkIdle:
		return true
	}
	return false
}

// WaitState names the element condition a wait action polls for.
type WaitState string

const (
	WaitStateVisible  WaitState = "visible"
	WaitStateHidden   WaitState = "hidden"
	WaitStateAttached WaitState = "attached"
	WaitStateDetached WaitState = "detached"
)

// Valid reports whether s is a known wait state.
func (s WaitState) Valid() bool {
	switch s {
	case WaitStateVisible, WaitStateHidden, WaitStateAttached, WaitStateDetached:
		return true
	}
	return false
}

// Locator identifies page elements by exactly one strategy. No fallback
// chain: a locator with both or neither strategy set is invalid.
type Locator struct {
	XPath string `json:"xpath,omitempty"`
	CSS   string `json:"css,omitempty"`
}

// Validate checks that exactly one resolution strategy is set.
func (l Locator) Validate() error {
	if l.XPath != "" && l.CSS != "" {
		return fmt.Errorf("locator has both xpath and css set")
	}
	if l.XPath == "" && l.CSS == "" {
		return fmt.Errorf("locator has neither xpath nor css set")
	}
	return nil
}

// IsZero reports whether the locator is empty.
func (l Locator) IsZero() bool {
	return l.XPath == "" && l.CSS == ""
}

// String returns the locator expression for logging and error context.
func (l Locator) String() string {
	if l.XPath != "" {
		return "xpath=" + l.XPath
	}
	if l.CSS != "" {
		return "css=" + l.CSS
	}
	return "<empty>"
}

// Viewport defines the browser viewport size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Proxy routes a session's traffic through an upstream proxy server.
// Credentials answer the proxy's auth challenge; they are task
// configuration, not extracted data, and never appear in reports.
type Proxy struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// SessionConfig configures one browser session. A session is bound to
// exactly one task and never reused.
type SessionConfig struct {
	TaskID     string
	InitialURL string
	WaitUntil  WaitUntil
	NavTimeout time.Duration
	Viewport   Viewport
	UserAgent  string
	Headers    map[string]string
	Proxy      *Proxy
}

// DefaultViewport is used when a task does not override the viewport.
var DefaultViewport = Viewport{Width: 1920, Height: 1080}

// NavigateOptions tunes an explicit navigation.
type NavigateOptions struct {
	WaitUntil WaitUntil
}
