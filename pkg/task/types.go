// Package task defines the crawl task model: the closed action set, task
// configuration, validation, and the immutable result records the engine
// produces. Validation is total and never touches a browser, so malformed
// tasks are rejected before any session is allocated.
package task

import (
	"time"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// ActionKind enumerates the closed set of action variants.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionWait       ActionKind = "wait"
	ActionFill       ActionKind = "fill"
	ActionClick      ActionKind = "click"
	ActionSelect     ActionKind = "select"
	ActionExtract    ActionKind = "extract"
	ActionScreenshot ActionKind = "screenshot"
	ActionLogin      ActionKind = "login"
)

// Kinds lists every valid action kind.
var Kinds = []ActionKind{
	ActionNavigate, ActionWait, ActionFill, ActionClick,
	ActionSelect, ActionExtract, ActionScreenshot, ActionLogin,
}

// Valid reports whether k names a known action kind.
func (k ActionKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ReadOnly reports whether the kind never mutates page state.
func (k ActionKind) ReadOnly() bool {
	return k == ActionExtract || k == ActionScreenshot
}

// Action is one declarative browser operation. The struct is the union of
// every variant's fields; Validate enforces per-kind requirements so an
// accepted Action carries exactly the fields its kind needs.
type Action struct {
	Type ActionKind `json:"type"`

	// ContinueOnError overrides the runner's abort policy for this
	// action. Nil defers to the policy default.
	ContinueOnError *bool `json:"continue_on_error,omitempty"`

	// TimeoutMS overrides the task-level per-action timeout.
	TimeoutMS int `json:"timeout_ms,omitempty"`

	// navigate
	URL       string            `json:"url,omitempty"`
	WaitUntil browser.WaitUntil `json:"wait_until,omitempty"`

	// wait, fill, click, select, extract, screenshot
	Locator *browser.Locator `json:"locator,omitempty"`

	// wait
	State   browser.WaitState `json:"state,omitempty"`
	DelayMS int               `json:"delay_ms,omitempty"`

	// fill, select
	Value string `json:"value,omitempty"`

	// select
	ByLabel bool `json:"by_label,omitempty"`

	// extract
	Attribute string `json:"attribute,omitempty"`
	Multiple  bool   `json:"multiple,omitempty"`

	// extract, screenshot
	Name string `json:"name,omitempty"`

	// screenshot
	FullPage bool `json:"full_page,omitempty"`

	// login
	UsernameLocator   *browser.Locator `json:"username_locator,omitempty"`
	PasswordLocator   *browser.Locator `json:"password_locator,omitempty"`
	SubmitLocator     *browser.Locator `json:"submit_locator,omitempty"`
	SecretRef         string           `json:"secret_ref,omitempty"`
	WaitAfterSubmitMS int              `json:"wait_after_submit_ms,omitempty"`
}

// Timeout returns the effective per-action timeout given the task default.
func (a Action) Timeout(taskDefault time.Duration) time.Duration {
	if a.TimeoutMS > 0 {
		return time.Duration(a.TimeoutMS) * time.Millisecond
	}
	return taskDefault
}

// Config holds task execution options.
type Config struct {
	// TimeoutMS bounds the whole task and is the default per-action
	// timeout. A pointer so that an omitted value defaults while an
	// explicit zero is rejected.
	TimeoutMS *int `json:"timeout_ms,omitempty"`

	WaitUntil browser.WaitUntil `json:"wait_until,omitempty"`
	Viewport  browser.Viewport  `json:"viewport,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`

	// Headers are merged over the session's baseline request headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Proxy routes all session traffic through an upstream proxy.
	Proxy *browser.Proxy `json:"proxy,omitempty"`
}

// DefaultTimeoutMS applies when a task omits config.timeout_ms.
const DefaultTimeoutMS = 30000

// Timeout returns the task-level deadline as a duration.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMS == nil {
		return time.Duration(DefaultTimeoutMS) * time.Millisecond
	}
	return time.Duration(*c.TimeoutMS) * time.Millisecond
}

// Task is one crawl unit. Immutable once accepted by the runner.
type Task struct {
	TaskID   string            `json:"task_id"`
	URL      string            `json:"url"`
	Actions  []Action          `json:"actions"`
	Config   Config            `json:"config"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SecretRefs returns the distinct credential references the task's login
// actions will need, in first-use order. The runner fetches them before
// opening a session so a secret failure is the cheapest possible abort.
func (t *Task) SecretRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, a := range t.Actions {
		if a.Type != ActionLogin {
			continue
		}
		if !seen[a.SecretRef] {
			seen[a.SecretRef] = true
			refs = append(refs, a.SecretRef)
		}
	}
	return refs
}
