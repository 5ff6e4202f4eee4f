package task

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/crawlerd/crawlerd/pkg/browser"
	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
)

// Decode parses a raw task record and validates it. Malformed JSON and
// validation failures both come back as CodeValidation errors; the caller
// dead-letters them rather than retrying.
func Decode(raw []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, crawlerrors.Wrap(err, crawlerrors.CodeValidation, "task record is not valid JSON")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the task shape, applies defaults, and assigns a task ID
// when the caller did not. It is side-effect free beyond normalizing the
// receiver.
func (t *Task) Validate() error {
	if t.URL == "" {
		return validationError("task url is required", -1, "")
	}
	if u, err := url.Parse(t.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return validationError(fmt.Sprintf("task url %q is not absolute", t.URL), -1, "")
	}
	if len(t.Actions) == 0 {
		return validationError("task has no actions", -1, "")
	}

	if t.Config.TimeoutMS == nil {
		def := DefaultTimeoutMS
		t.Config.TimeoutMS = &def
	} else if *t.Config.TimeoutMS <= 0 {
		return validationError(fmt.Sprintf("config.timeout_ms must be positive, got %d", *t.Config.TimeoutMS), -1, "")
	}
	if t.Config.WaitUntil == "" {
		t.Config.WaitUntil = browser.WaitUntilDOMContentLoaded
	}
	if !t.Config.WaitUntil.Valid() {
		return validationError(fmt.Sprintf("config.wait_until %q is unknown", t.Config.WaitUntil), -1, "")
	}
	if t.Config.Proxy != nil && t.Config.Proxy.Server == "" {
		return validationError("config.proxy requires server", -1, "")
	}

	for i := range t.Actions {
		if err := validateAction(&t.Actions[i], i); err != nil {
			return err
		}
	}

	if t.TaskID == "" {
		t.TaskID = GenerateID()
	}
	return nil
}

func validateAction(a *Action, index int) error {
	if !a.Type.Valid() {
		return validationError(fmt.Sprintf("unknown action type %q", a.Type), index, string(a.Type))
	}
	if a.TimeoutMS < 0 {
		return validationError("timeout_ms must not be negative", index, string(a.Type))
	}

	switch a.Type {
	case ActionNavigate:
		if a.URL == "" {
			return validationError("navigate requires url", index, string(a.Type))
		}
		if a.WaitUntil == "" {
			a.WaitUntil = browser.WaitUntilDOMContentLoaded
		}
		if !a.WaitUntil.Valid() {
			return validationError(fmt.Sprintf("navigate wait_until %q is unknown", a.WaitUntil), index, string(a.Type))
		}

	case ActionWait:
		hasDelay := a.DelayMS > 0
		hasLocator := a.Locator != nil
		if !hasDelay && !hasLocator {
			return validationError("wait requires delay_ms or locator", index, string(a.Type))
		}
		if hasDelay && hasLocator {
			return validationError("wait takes delay_ms or locator, not both", index, string(a.Type))
		}
		if hasLocator {
			if err := locatorField(a.Locator, "locator", index, a.Type); err != nil {
				return err
			}
			if a.State == "" {
				a.State = browser.WaitStateVisible
			}
			if !a.State.Valid() {
				return validationError(fmt.Sprintf("wait state %q is unknown", a.State), index, string(a.Type))
			}
		}

	case ActionFill:
		if err := locatorField(a.Locator, "locator", index, a.Type); err != nil {
			return err
		}
		// Empty value is allowed: filling with "" clears the field.

	case ActionClick:
		if err := locatorField(a.Locator, "locator", index, a.Type); err != nil {
			return err
		}

	case ActionSelect:
		if err := locatorField(a.Locator, "locator", index, a.Type); err != nil {
			return err
		}
		if a.Value == "" {
			return validationError("select requires value", index, string(a.Type))
		}

	case ActionExtract:
		if err := locatorField(a.Locator, "locator", index, a.Type); err != nil {
			return err
		}
		if a.Name == "" {
			return validationError("extract requires name", index, string(a.Type))
		}
		if a.Attribute == "" {
			a.Attribute = AttributeInnerText
		}

	case ActionScreenshot:
		// Locator is optional: with one, capture that element; without,
		// capture viewport or full page.
		if a.Locator != nil {
			if err := locatorField(a.Locator, "locator", index, a.Type); err != nil {
				return err
			}
		}

	case ActionLogin:
		if err := locatorField(a.UsernameLocator, "username_locator", index, a.Type); err != nil {
			return err
		}
		if err := locatorField(a.PasswordLocator, "password_locator", index, a.Type); err != nil {
			return err
		}
		if err := locatorField(a.SubmitLocator, "submit_locator", index, a.Type); err != nil {
			return err
		}
	}
	return nil
}

// Extract attribute pseudo-names. Anything else reads a DOM attribute.
const (
	AttributeInnerText = "inner_text"
	AttributeInnerHTML = "inner_html"
)

func locatorField(loc *browser.Locator, field string, index int, kind ActionKind) error {
	if loc == nil || loc.IsZero() {
		return validationError(fmt.Sprintf("%s requires %s", kind, field), index, string(kind))
	}
	if err := loc.Validate(); err != nil {
		return validationError(fmt.Sprintf("%s %s: %v", kind, field, err), index, string(kind))
	}
	return nil
}

func validationError(msg string, index int, kind string) error {
	err := crawlerrors.New(crawlerrors.CodeValidation, msg)
	if index >= 0 {
		err = err.WithContext("action_index", index)
	}
	if kind != "" {
		err = err.WithContext("action_type", kind)
	}
	return err
}
