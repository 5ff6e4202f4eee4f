package chrome

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// Session implements browser.Session over one chromedp browser context.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// ID implements browser.Session.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions on the session context, bounded by the
// caller's context. chromedp only honors cancellation of its own context
// chain, so the caller's deadline has to be transplanted onto it.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	s.mu.Unlock()

	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return chromedp.Run(runCtx, actions...)
}

// Navigate implements browser.Session.
func (s *Session) Navigate(ctx context.Context, url string, opts browser.NavigateOptions) error {
	settle := opts.WaitUntil
	if !settle.Valid() {
		settle = browser.WaitUntilDOMContentLoaded
	}

	err := s.run(ctx, chromedp.Navigate(url), waitSettled(settle))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return browser.ErrNavigationTimeout
		}
		return browser.WrapSessionError("navigate", "navigation failed", err)
	}
	return nil
}

// waitSettled polls document.readyState until the requested condition
// holds. networkidle is approximated as load plus a settle delay; CDP has
// no portable idle signal short of tracking every request.
func waitSettled(settle browser.WaitUntil) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var state string
			if err := chromedp.Evaluate("document.readyState", &state).Do(ctx); err != nil {
				return err
			}
			switch settle {
			case browser.WaitUntilDOMContentLoaded:
				if state == "interactive" || state == "complete" {
					return nil
				}
			case browser.WaitUntilLoad:
				if state == "complete" {
					return nil
				}
			case browser.WaitUntilNetworkIdle:
				if state == "complete" {
					select {
					case <-time.After(500 * time.Millisecond):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// locatorQuery maps a locator onto a chromedp selector and query option.
func locatorQuery(loc browser.Locator) (string, chromedp.QueryOption) {
	if loc.CSS != "" {
		return loc.CSS, chromedp.ByQueryAll
	}
	return loc.XPath, chromedp.BySearch
}

// Query implements browser.Session. Matches come back in document order;
// each element is pinned by its full XPath so later operations survive
// unrelated DOM churn.
func (s *Session) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	expr, opt := locatorQuery(loc)

	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(expr, &nodes, opt, chromedp.AtLeast(0)))
	if err != nil {
		return nil, browser.WrapSessionError("query", "locator query failed", err)
	}

	elements := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &Element{sess: s, xpath: n.FullXPath()})
	}
	return elements, nil
}

// WaitFor implements browser.Session.
func (s *Session) WaitFor(ctx context.Context, loc browser.Locator, state browser.WaitState) error {
	expr, opt := locatorQuery(loc)

	var action chromedp.Action
	switch state {
	case browser.WaitStateVisible:
		action = chromedp.WaitVisible(expr, opt)
	case browser.WaitStateHidden:
		action = chromedp.WaitNotVisible(expr, opt)
	case browser.WaitStateAttached:
		action = chromedp.WaitReady(expr, opt)
	case browser.WaitStateDetached:
		action = chromedp.WaitNotPresent(expr, opt)
	default:
		return browser.NewSessionError("bad_state", "unknown wait state "+string(state))
	}

	if err := s.run(ctx, action); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return browser.ErrWaitTimeout
		}
		return browser.WrapSessionError("wait", "wait failed", err)
	}
	return nil
}

// Screenshot implements browser.Session.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 90)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := s.run(ctx, action); err != nil {
		return nil, browser.WrapSessionError("screenshot", "capture failed", err)
	}
	return buf, nil
}

// CurrentURL implements browser.Session.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", browser.WrapSessionError("location", "location read failed", err)
	}
	return url, nil
}

// Close implements browser.Session. Cancelling the chromedp context tears
// down the browser context and every target in it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
