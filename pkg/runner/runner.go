// Package runner drives one task through its action sequence. The runner
// owns the task state machine: it opens exactly one browser session,
// executes actions in order, decides continue-or-abort on each failure,
// and enforces the task-level deadline. Action failures are captured into
// the trace; only an engine fault escapes as a Go error.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/crawlerd/crawlerd/pkg/artifact"
	"github.com/crawlerd/crawlerd/pkg/browser"
	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/executor"
	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/secrets"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// Options configures a Runner. Browser, Secrets, and Artifacts are the
// engine's three collaborators; the rest is policy.
type Options struct {
	Browser   *browser.Manager
	Secrets   secrets.Provider
	Artifacts artifact.Store
	Logger    *logging.Logger

	// ContinueOnReadOnly defaults continue_on_error to true for extract
	// and screenshot actions that leave the flag unset. Mutating actions
	// always default to abort.
	ContinueOnReadOnly bool

	// BackfillSkipped appends skipped entries for never-executed actions
	// after an abort, for audit. The report states when this was applied.
	BackfillSkipped bool

	// PersistReports writes every final report to the artifact store.
	PersistReports bool
}

// Runner executes tasks one at a time. Safe for concurrent use; all
// per-task state lives in Run's frame.
type Runner struct {
	opts   Options
	logger *logging.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Runner{opts: opts, logger: opts.Logger}
}

// Run executes one validated task and returns its report. The returned
// error is non-nil only for an engine fault (crashed browser, internal
// panic); every other outcome, including total failure, is a terminal
// report the caller can acknowledge.
func (r *Runner) Run(ctx context.Context, t *task.Task) (report *task.Report, err error) {
	logger := r.logger.WithTask(t.TaskID)
	startedAt := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(logging.CategoryTask, "task_panic", fmt.Sprintf("%v", p), nil)
			report = nil
			err = crawlerrors.New(crawlerrors.CodeEngine, fmt.Sprintf("task runner panic: %v", p)).
				WithContext("task_id", t.TaskID).
				WithRetryable(true)
		}
	}()

	timeout := t.Config.Timeout()
	if timeout <= 0 {
		timeout = time.Duration(task.DefaultTimeoutMS) * time.Millisecond
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info(logging.CategoryTask, "task_started", "", map[string]any{
		"url":        t.URL,
		"actions":    len(t.Actions),
		"timeout_ms": timeout.Milliseconds(),
	})

	// Secrets come first: a retrieval failure is the cheapest abort, so
	// no session is allocated for a task that could never log in.
	creds, err := r.fetchCredentials(taskCtx, t)
	if err != nil {
		logger.Warn(logging.CategorySecrets, "secret_retrieval_failed", err.Error(), nil)
		return r.assemble(taskCtx, t, nil, &task.ErrorInfo{
			Kind:    crawlerrors.CodeSecretRetrieval,
			Message: err.Error(),
		}, startedAt, false), nil
	}

	sess, err := r.opts.Browser.Open(taskCtx, browser.SessionConfig{
		TaskID:     t.TaskID,
		InitialURL: t.URL,
		WaitUntil:  t.Config.WaitUntil,
		NavTimeout: timeout,
		Viewport:   t.Config.Viewport,
		UserAgent:  t.Config.UserAgent,
		Headers:    t.Config.Headers,
		Proxy:      t.Config.Proxy,
	})
	if err != nil {
		if browser.IsEngineFault(err) {
			return nil, crawlerrors.Wrap(err, crawlerrors.CodeEngine, "browser session unavailable").
				WithContext("task_id", t.TaskID).
				WithRetryable(true)
		}
		// The target never settled: a normal failure with zero results.
		logger.Warn(logging.CategoryBrowser, "session_open_failed", err.Error(), nil)
		return r.assemble(taskCtx, t, nil, &task.ErrorInfo{
			Kind:    crawlerrors.CodeNavigationTimeout,
			Message: err.Error(),
		}, startedAt, false), nil
	}
	defer sess.Close()

	exec := executor.New(executor.Options{
		TaskID:         t.TaskID,
		Artifacts:      r.opts.Artifacts,
		Credentials:    creds,
		Logger:         r.logger,
		DefaultTimeout: timeout,
	})

	results, taskErr, aborted := r.runActions(taskCtx, exec, sess, t)

	report = r.assemble(taskCtx, t, results, taskErr, startedAt, aborted)
	logger.Info(logging.CategoryTask, "task_finished", "", map[string]any{
		"status":      report.Status,
		"actions_run": len(results),
		"duration_ms": report.DurationMS,
	})
	return report, nil
}

// runActions iterates the action sequence until completion or abort.
// The returned slice is always a prefix-or-full trace in original order;
// a non-nil error info means the task itself timed out between actions.
func (r *Runner) runActions(ctx context.Context, exec *executor.Executor, sess browser.Session, t *task.Task) ([]task.ActionResult, *task.ErrorInfo, bool) {
	results := make([]task.ActionResult, 0, len(t.Actions))

	for i, act := range t.Actions {
		if ctx.Err() != nil {
			// The deadline fired between actions: nothing is in flight, so
			// no entry is force-failed; the never-started tail stays out of
			// the trace (backfilled as skipped when enabled).
			return results, &task.ErrorInfo{
				Kind:    crawlerrors.CodeTaskTimeout,
				Message: "task deadline exceeded",
			}, true
		}

		res := exec.Execute(ctx, sess, i, act)

		if res.Status == task.StatusFailed && ctx.Err() != nil {
			// The task deadline fired mid-action; the in-flight action
			// takes the timeout, whatever the underlying error was.
			res.Error = &task.ErrorInfo{
				Kind:    crawlerrors.CodeTaskTimeout,
				Message: "task deadline exceeded during " + string(act.Type),
			}
			results = append(results, res)
			return results, nil, true
		}

		results = append(results, res)

		if res.Status == task.StatusFailed && !r.continueAfter(act) {
			return results, nil, true
		}
	}
	return results, nil, false
}

// continueAfter decides whether execution proceeds past a failed action.
func (r *Runner) continueAfter(act task.Action) bool {
	if act.ContinueOnError != nil {
		return *act.ContinueOnError
	}
	return r.opts.ContinueOnReadOnly && act.Type.ReadOnly()
}

// fetchCredentials resolves every secret reference the task's login
// actions name, before any browser work.
func (r *Runner) fetchCredentials(ctx context.Context, t *task.Task) (map[string]secrets.Credentials, error) {
	refs := t.SecretRefs()
	if len(refs) == 0 {
		return nil, nil
	}
	if r.opts.Secrets == nil {
		return nil, crawlerrors.New(crawlerrors.CodeSecretRetrieval, "no secrets provider configured")
	}

	creds := make(map[string]secrets.Credentials, len(refs))
	for _, ref := range refs {
		c, err := r.opts.Secrets.Get(ctx, ref)
		if err != nil {
			return nil, crawlerrors.Wrap(err, crawlerrors.CodeSecretRetrieval,
				"failed to retrieve credentials").WithContext("secret_ref", ref)
		}
		creds[ref] = c
	}
	return creds, nil
}
