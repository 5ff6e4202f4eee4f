// Package browsertest provides an in-memory browser.Runtime backed by
// static HTML documents. CSS locators resolve through goquery, XPath
// locators through htmlquery, both over the same parsed tree, so resolver
// and executor tests run against real selector semantics without a browser.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// Runtime is a fake browser.Runtime serving registered pages.
type Runtime struct {
	mu       sync.Mutex
	pages    map[string]string
	sessions []*Session
	closed   bool

	// NewSessionErr, when set, fails session creation. Simulates a
	// crashed or unlaunchable browser.
	NewSessionErr error

	// Configure, when set, is applied to every new session before it is
	// returned. Tests use it to install hooks and failure modes.
	Configure func(*Session)
}

// NewRuntime creates an empty fake runtime.
func NewRuntime() *Runtime {
	return &Runtime{pages: make(map[string]string)}
}

// AddPage registers the HTML document served for a URL.
func (r *Runtime) AddPage(url, htmlSrc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[url] = htmlSrc
}

// Sessions returns every session the runtime has created.
func (r *Runtime) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Session(nil), r.sessions...)
}

// NewSession implements browser.Runtime.
func (r *Runtime) NewSession(ctx context.Context, cfg browser.SessionConfig) (browser.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, browser.ErrUnavailable
	}
	if r.NewSessionErr != nil {
		return nil, r.NewSessionErr
	}

	s := &Session{
		id:      "fake-" + strings.ToLower(ulid.Make().String()),
		runtime: r,
		Config:  cfg,
	}
	if r.Configure != nil {
		r.Configure(s)
	}
	r.sessions = append(r.sessions, s)
	return s, nil
}

// Close implements browser.Runtime.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Runtime) lookupPage(url string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.pages[url]
	return src, ok
}

// Session is a fake browser.Session over one parsed HTML document.
type Session struct {
	mu         sync.Mutex
	id         string
	runtime    *Runtime
	currentURL string
	doc        *html.Node
	closed     bool
	closeCount int

	// NavigateErr, when set, fails every navigation.
	NavigateErr error

	// NavigateDelay stalls navigation; combined with a short context it
	// simulates a navigation timeout.
	NavigateDelay time.Duration

	// ClickHook runs after a successful click. Tests use it to swap the
	// document the way a real click would trigger a page change.
	ClickHook func(s *Session) error

	// Clicks records the text content of every clicked element, in order.
	Clicks []string

	// Config is the session configuration the runtime was asked for.
	Config browser.SessionConfig
}

// ID implements browser.Session.
func (s *Session) ID() string { return s.id }

// Navigate implements browser.Session.
func (s *Session) Navigate(ctx context.Context, url string, opts browser.NavigateOptions) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	delay := s.NavigateDelay
	navErr := s.NavigateErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return browser.ErrNavigationTimeout
		}
	}
	if navErr != nil {
		return navErr
	}

	src, ok := s.runtime.lookupPage(url)
	if !ok {
		// A real browser still lands somewhere on an unknown URL.
		src = "<html><body></body></html>"
	}
	return s.load(url, src)
}

// SetHTML replaces the current document in place, as a page mutation would.
func (s *Session) SetHTML(htmlSrc string) error {
	s.mu.Lock()
	url := s.currentURL
	s.mu.Unlock()
	return s.load(url, htmlSrc)
}

func (s *Session) load(url, src string) error {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return browser.WrapSessionError("parse_failed", "failed to parse document", err)
	}
	s.mu.Lock()
	s.currentURL = url
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Query implements browser.Session.
func (s *Session) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	if s.doc == nil {
		return nil, nil
	}

	nodes, err := queryNodes(s.doc, loc)
	if err != nil {
		return nil, err
	}
	elements := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &Element{sess: s, node: n})
	}
	return elements, nil
}

// WaitFor implements browser.Session. The fake has no layout engine:
// visible means attached without hidden markup, hidden means the inverse.
func (s *Session) WaitFor(ctx context.Context, loc browser.Locator, state browser.WaitState) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := s.stateHolds(loc, state)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return browser.ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

func (s *Session) stateHolds(loc browser.Locator, state browser.WaitState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, browser.ErrSessionClosed
	}
	if s.doc == nil {
		return state == browser.WaitStateDetached || state == browser.WaitStateHidden, nil
	}

	nodes, err := queryNodes(s.doc, loc)
	if err != nil {
		return false, err
	}

	switch state {
	case browser.WaitStateAttached:
		return len(nodes) > 0, nil
	case browser.WaitStateDetached:
		return len(nodes) == 0, nil
	case browser.WaitStateVisible:
		for _, n := range nodes {
			if nodeVisible(n) {
				return true, nil
			}
		}
		return false, nil
	case browser.WaitStateHidden:
		for _, n := range nodes {
			if nodeVisible(n) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, browser.NewSessionError("bad_state", "unknown wait state "+string(state))
}

// Screenshot implements browser.Session.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	if fullPage {
		return []byte("fake-fullpage-screenshot:" + s.currentURL), nil
	}
	return []byte("fake-screenshot:" + s.currentURL), nil
}

// CurrentURL implements browser.Session.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrSessionClosed
	}
	return s.currentURL, nil
}

// Close implements browser.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCount++
	return nil
}

// CloseCount reports how many times Close was invoked. The manager must
// make this exactly one per task regardless of exit path.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func nodeVisible(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return false
		}
		if a.Key == "style" && strings.Contains(strings.ReplaceAll(a.Val, " ", ""), "display:none") {
			return false
		}
	}
	return true
}
