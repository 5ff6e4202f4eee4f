package executor

import (
	"context"
	"time"

	"github.com/crawlerd/crawlerd/pkg/browser"
	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/resolver"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// loginError names the first failing sub-step of a composite login. The
// sub-steps are not recorded individually: one result per login keeps
// credential-adjacent selectors out of the trace beyond what diagnosis
// needs.
type loginError struct {
	substep string
	err     error
}

func (e *loginError) Error() string {
	return "login " + e.substep + " failed: " + e.err.Error()
}

func (e *loginError) Unwrap() error {
	return e.err
}

// postLoginSettle caps how long a login waits for the page to move after
// submit when the task gives no explicit wait.
const postLoginSettle = 5 * time.Second

func (e *Executor) executeLogin(ctx context.Context, sess browser.Session, act task.Action) error {
	creds, ok := e.creds[act.SecretRef]
	if !ok {
		return &loginError{substep: "credentials", err: crawlerrors.New(
			crawlerrors.CodeSecretRetrieval, "no credentials resolved for login action")}
	}

	username, err := resolver.One(ctx, sess, *act.UsernameLocator)
	if err != nil {
		return &loginError{substep: "username", err: err}
	}
	if err := username.Fill(ctx, creds.Username.Reveal()); err != nil {
		return &loginError{substep: "username", err: err}
	}

	password, err := resolver.One(ctx, sess, *act.PasswordLocator)
	if err != nil {
		return &loginError{substep: "password", err: err}
	}
	if err := password.Fill(ctx, creds.Password.Reveal()); err != nil {
		return &loginError{substep: "password", err: err}
	}

	beforeURL, _ := sess.CurrentURL(ctx)

	submit, err := resolver.One(ctx, sess, *act.SubmitLocator)
	if err != nil {
		return &loginError{substep: "submit", err: err}
	}
	if err := submit.Click(ctx); err != nil {
		return &loginError{substep: "submit", err: err}
	}

	if act.WaitAfterSubmitMS > 0 {
		select {
		case <-time.After(time.Duration(act.WaitAfterSubmitMS) * time.Millisecond):
		case <-ctx.Done():
			return &loginError{substep: "post_submit_wait", err: browser.ErrWaitTimeout}
		}
		return nil
	}

	// No explicit wait configured: give the site a bounded window to
	// navigate. Single-page logins may never change the URL, so running
	// out the window is not a failure.
	settleCtx, cancel := context.WithTimeout(ctx, postLoginSettle)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-settleCtx.Done():
			return nil
		case <-ticker.C:
			if url, err := sess.CurrentURL(settleCtx); err == nil && url != beforeURL {
				return nil
			}
		}
	}
}
