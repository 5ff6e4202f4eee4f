// Package chrome implements the browser ports on top of a headless Chrome
// driven over the DevTools protocol via chromedp. One allocator is shared
// by the worker; every task gets its own browser context, torn down with
// the task.
package chrome

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/oklog/ulid/v2"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// defaultUserAgent masks the headless build as a desktop Chrome when a
// task does not set its own.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// stealthScript runs before any page script on every new document and
// hides the usual headless tells: navigator.webdriver, an empty plugin
// list, missing window.chrome, and the notification-permission probe.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
	window.chrome = window.chrome || { runtime: {} };
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) =>
		parameters.name === 'notifications'
			? Promise.resolve({ state: 'denied' })
			: originalQuery(parameters);
})();`

// sessionHeaders merges the baseline request headers with per-task
// overrides; a task header wins over a baseline one.
func sessionHeaders(extra map[string]string) network.Headers {
	headers := network.Headers{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
	}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

// Options configures the Chrome allocator.
type Options struct {
	// ExecPath overrides the Chrome binary location.
	ExecPath string

	// Headful disables headless mode. Debugging only.
	Headful bool

	// NoSandbox disables the Chrome sandbox. Required in most container
	// runtimes.
	NoSandbox bool
}

// Runtime implements browser.Runtime over a shared exec allocator.
type Runtime struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	allocOpts   []chromedp.ExecAllocatorOption
}

// NewRuntime creates a Chrome-backed runtime. The browser process itself
// launches lazily on the first session.
func NewRuntime(opts Options) *Runtime {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("disable-blink-features", "AutomationControlled"))
	if opts.Headful {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &Runtime{allocCtx: allocCtx, allocCancel: allocCancel, allocOpts: allocOpts}
}

// NewSession implements browser.Runtime. Each session is an isolated
// browser context; cookies and storage never leak between tasks.
func (r *Runtime) NewSession(ctx context.Context, cfg browser.SessionConfig) (browser.Session, error) {
	parent := r.allocCtx
	var allocCancel context.CancelFunc
	if cfg.Proxy != nil {
		// A proxy server binds at process launch, so a proxied task gets
		// its own browser process instead of the shared one.
		opts := append([]chromedp.ExecAllocatorOption{}, r.allocOpts...)
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy.Server))
		parent, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	sessCtx, sessCancel := chromedp.NewContext(parent)
	cancel := func() {
		sessCancel()
		if allocCancel != nil {
			allocCancel()
		}
	}

	proxyAuth := cfg.Proxy != nil && cfg.Proxy.Username != ""
	if proxyAuth {
		answerProxyAuth(sessCtx, cfg.Proxy.Username, cfg.Proxy.Password)
	}

	vp := cfg.Viewport
	if vp == (browser.Viewport{}) {
		vp = browser.DefaultViewport
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)),
		emulation.SetUserAgentOverride(ua),
		network.Enable(),
		network.SetExtraHTTPHeaders(sessionHeaders(cfg.Headers)),
	}
	if proxyAuth {
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}

	if err := chromedp.Run(sessCtx, setup...); err != nil {
		cancel()
		return nil, browser.WrapSessionError("launch_failed", "chrome session launch failed", err)
	}

	return &Session{
		id:     "chrome-" + strings.ToLower(ulid.Make().String()),
		ctx:    sessCtx,
		cancel: cancel,
	}, nil
}

// answerProxyAuth responds to the proxy's auth challenge with the task's
// credentials. Enabling fetch with auth handling pauses every request, so
// non-challenge requests are resumed untouched.
func answerProxyAuth(sessCtx context.Context, username, password string) {
	chromedp.ListenTarget(sessCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				c := chromedp.FromContext(sessCtx)
				execCtx := cdp.WithExecutor(sessCtx, c.Target)
				_ = fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}).Do(execCtx)
			}()
		case *fetch.EventRequestPaused:
			go func() {
				c := chromedp.FromContext(sessCtx)
				execCtx := cdp.WithExecutor(sessCtx, c.Target)
				_ = fetch.ContinueRequest(e.RequestID).Do(execCtx)
			}()
		}
	})
}

// Close implements browser.Runtime.
func (r *Runtime) Close() error {
	r.allocCancel()
	return nil
}
