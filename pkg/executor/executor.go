// Package executor runs single actions against a live browser session.
// Every execution method enforces its own bounded wait; a hung page fails
// the action, never the engine.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/crawlerd/crawlerd/pkg/artifact"
	"github.com/crawlerd/crawlerd/pkg/browser"
	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/resolver"
	"github.com/crawlerd/crawlerd/pkg/secrets"
	"github.com/crawlerd/crawlerd/pkg/task"
	"github.com/crawlerd/crawlerd/pkg/telemetry"
)

// Executor executes actions for one task. It is built per task: the
// credential set is resolved before the session opens and dies with the
// task.
type Executor struct {
	taskID         string
	artifacts      artifact.Store
	creds          map[string]secrets.Credentials
	logger         *logging.Logger
	defaultTimeout time.Duration
}

// Options configures a per-task Executor.
type Options struct {
	TaskID         string
	Artifacts      artifact.Store
	Credentials    map[string]secrets.Credentials
	Logger         *logging.Logger
	DefaultTimeout time.Duration
}

// New creates an Executor for one task.
func New(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = time.Duration(task.DefaultTimeoutMS) * time.Millisecond
	}
	return &Executor{
		taskID:         opts.TaskID,
		artifacts:      opts.Artifacts,
		creds:          opts.Credentials,
		logger:         opts.Logger.WithTask(opts.TaskID),
		defaultTimeout: opts.DefaultTimeout,
	}
}

// Execute runs one action and returns its immutable result. Failures are
// captured into the result; no action-level error escapes as a Go error.
func (e *Executor) Execute(ctx context.Context, sess browser.Session, index int, act task.Action) task.ActionResult {
	start := time.Now()

	actCtx, cancel := context.WithTimeout(ctx, act.Timeout(e.defaultTimeout))
	defer cancel()

	spanCtx, span := telemetry.Tracer().Start(actCtx, "action."+string(act.Type))
	span.SetAttributes(telemetry.Int("action.index", index), telemetry.String("task.id", e.taskID))
	defer span.End()

	data, ref, err := e.dispatch(spanCtx, sess, act)

	result := task.ActionResult{
		Index:      index,
		Type:       act.Type,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = task.StatusFailed
		result.Error = classify(act.Type, err)
		e.logger.Warn(logging.CategoryAction, "action_failed", result.Error.Message, map[string]any{
			"index": index,
			"type":  act.Type,
			"kind":  result.Error.Kind,
		})
		return result
	}

	result.Status = task.StatusOK
	result.Data = data
	result.ArtifactRef = ref
	e.logger.Debug(logging.CategoryAction, "action_ok", "", map[string]any{
		"index":       index,
		"type":        act.Type,
		"duration_ms": result.DurationMS,
	})
	return result
}

func (e *Executor) dispatch(ctx context.Context, sess browser.Session, act task.Action) (map[string]any, *artifact.Ref, error) {
	switch act.Type {
	case task.ActionNavigate:
		return nil, nil, e.executeNavigate(ctx, sess, act)
	case task.ActionWait:
		return nil, nil, e.executeWait(ctx, sess, act)
	case task.ActionFill:
		return nil, nil, e.executeFill(ctx, sess, act)
	case task.ActionClick:
		return nil, nil, e.executeClick(ctx, sess, act)
	case task.ActionSelect:
		return nil, nil, e.executeSelect(ctx, sess, act)
	case task.ActionExtract:
		data, err := e.executeExtract(ctx, sess, act)
		return data, nil, err
	case task.ActionScreenshot:
		ref, err := e.executeScreenshot(ctx, sess, act)
		return nil, ref, err
	case task.ActionLogin:
		return nil, nil, e.executeLogin(ctx, sess, act)
	default:
		// Validation guarantees this cannot happen; keep the branch so a
		// new kind cannot be silently ignored.
		return nil, nil, fmt.Errorf("unhandled action type %q", act.Type)
	}
}

func (e *Executor) executeNavigate(ctx context.Context, sess browser.Session, act task.Action) error {
	return sess.Navigate(ctx, act.URL, browser.NavigateOptions{WaitUntil: act.WaitUntil})
}

func (e *Executor) executeWait(ctx context.Context, sess browser.Session, act task.Action) error {
	if act.DelayMS > 0 {
		select {
		case <-time.After(time.Duration(act.DelayMS) * time.Millisecond):
			return nil
		case <-ctx.Done():
			return browser.ErrWaitTimeout
		}
	}
	return sess.WaitFor(ctx, *act.Locator, act.State)
}

func (e *Executor) executeFill(ctx context.Context, sess browser.Session, act task.Action) error {
	el, err := resolver.One(ctx, sess, *act.Locator)
	if err != nil {
		return err
	}
	return el.Fill(ctx, act.Value)
}

func (e *Executor) executeClick(ctx context.Context, sess browser.Session, act task.Action) error {
	el, err := resolver.One(ctx, sess, *act.Locator)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (e *Executor) executeSelect(ctx context.Context, sess browser.Session, act task.Action) error {
	el, err := resolver.One(ctx, sess, *act.Locator)
	if err != nil {
		return err
	}
	return el.SelectOption(ctx, act.Value, act.ByLabel)
}

func (e *Executor) executeExtract(ctx context.Context, sess browser.Session, act task.Action) (map[string]any, error) {
	if act.Multiple {
		elements, err := resolver.All(ctx, sess, *act.Locator)
		if err != nil {
			return nil, err
		}
		values := make([]string, 0, len(elements))
		for _, el := range elements {
			v, err := readElement(ctx, el, act.Attribute)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return map[string]any{act.Name: values}, nil
	}

	el, err := resolver.First(ctx, sess, *act.Locator)
	if err != nil {
		return nil, err
	}
	value, err := readElement(ctx, el, act.Attribute)
	if err != nil {
		return nil, err
	}
	// Empty text is valid data; only resolver failures fail an extract.
	return map[string]any{act.Name: value}, nil
}

func readElement(ctx context.Context, el browser.Element, attribute string) (string, error) {
	switch attribute {
	case task.AttributeInnerText, "":
		return el.Text(ctx)
	case task.AttributeInnerHTML:
		return el.HTML(ctx)
	default:
		return el.Attribute(ctx, attribute)
	}
}

func (e *Executor) executeScreenshot(ctx context.Context, sess browser.Session, act task.Action) (*artifact.Ref, error) {
	name := act.Name
	if name == "" {
		name = fmt.Sprintf("screenshot-%d", time.Now().UnixMilli())
	}

	var data []byte
	var err error
	if act.Locator != nil {
		var el browser.Element
		el, err = resolver.First(ctx, sess, *act.Locator)
		if err != nil {
			return nil, err
		}
		data, err = el.Screenshot(ctx)
	} else {
		data, err = sess.Screenshot(ctx, act.FullPage)
	}
	if err != nil {
		return nil, err
	}

	ref, err := e.artifacts.Put(ctx, e.taskID, name, data, "image/png")
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
