package executor

import (
	"context"
	"errors"

	"github.com/crawlerd/crawlerd/pkg/browser"
	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// classify maps an execution error to the stable error kind recorded on
// the action result. Sentinel comparisons come first so that wrapped
// session errors land on their specific kind rather than the generic
// internal bucket.
func classify(kind task.ActionKind, err error) *task.ErrorInfo {
	info := &task.ErrorInfo{Message: err.Error()}

	var le *loginError
	if errors.As(err, &le) {
		info.Substep = le.substep
		info.Message = le.Error()
		err = le.err
	}

	switch {
	case errors.Is(err, browser.ErrNotFound):
		info.Kind = crawlerrors.CodeNotFound
	case errors.Is(err, browser.ErrAmbiguous):
		info.Kind = crawlerrors.CodeAmbiguous
	case errors.Is(err, browser.ErrNotFillable):
		info.Kind = crawlerrors.CodeNotFillable
	case errors.Is(err, browser.ErrNotInteractable):
		info.Kind = crawlerrors.CodeNotInteractable
	case errors.Is(err, browser.ErrNoSuchOption):
		info.Kind = crawlerrors.CodeNoSuchOption
	case errors.Is(err, browser.ErrNavigationTimeout):
		info.Kind = crawlerrors.CodeNavigationTimeout
	case errors.Is(err, browser.ErrWaitTimeout):
		info.Kind = crawlerrors.CodeWaitTimeout
	case errors.Is(err, context.DeadlineExceeded):
		if kind == task.ActionNavigate {
			info.Kind = crawlerrors.CodeNavigationTimeout
		} else {
			info.Kind = crawlerrors.CodeWaitTimeout
		}
	default:
		var ce *crawlerrors.Error
		if errors.As(err, &ce) {
			info.Kind = ce.Code
		} else {
			info.Kind = crawlerrors.CodeInternal
		}
	}
	return info
}
