package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlerd/crawlerd/pkg/artifact"
	"github.com/crawlerd/crawlerd/pkg/browser"
	"github.com/crawlerd/crawlerd/pkg/browser/browsertest"
	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/secrets"
	"github.com/crawlerd/crawlerd/pkg/task"
)

func css(sel string) *browser.Locator {
	return &browser.Locator{CSS: sel}
}

func newSession(t *testing.T, htmlSrc string) *browsertest.Session {
	t.Helper()
	rt := browsertest.NewRuntime()
	rt.AddPage("https://example.test/", htmlSrc)
	sess, err := rt.NewSession(context.Background(), browser.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, sess.Navigate(context.Background(), "https://example.test/", browser.NavigateOptions{}))
	return sess.(*browsertest.Session)
}

func newExecutor(opts Options) *Executor {
	if opts.TaskID == "" {
		opts.TaskID = "task-0000000000-abcdef"
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewMemoryStore()
	}
	return New(opts)
}

func TestExecuteFill(t *testing.T) {
	sess := newSession(t, `<html><body><input id="q" name="q"></body></html>`)
	e := newExecutor(Options{})

	res := e.Execute(context.Background(), sess, 0, task.Action{
		Type: task.ActionFill, Locator: css("#q"), Value: "golang",
	})
	require.Equal(t, task.StatusOK, res.Status)

	els, err := sess.Query(context.Background(), browser.Locator{CSS: "#q"})
	require.NoError(t, err)
	require.Len(t, els, 1)
	v, err := els[0].Attribute(context.Background(), "value")
	require.NoError(t, err)
	assert.Equal(t, "golang", v)
}

func TestExecuteFillMatchErrors(t *testing.T) {
	sess := newSession(t, `<html><body>
		<input class="dup"><input class="dup">
		<div id="text">not fillable</div>
	</body></html>`)
	e := newExecutor(Options{})

	tests := []struct {
		name    string
		locator *browser.Locator
		kind    crawlerrors.Code
	}{
		{"no match", css("#missing"), crawlerrors.CodeNotFound},
		{"multiple matches", css(".dup"), crawlerrors.CodeAmbiguous},
		{"not fillable", css("#text"), crawlerrors.CodeNotFillable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), sess, 0, task.Action{
				Type: task.ActionFill, Locator: tt.locator, Value: "x",
			})
			require.Equal(t, task.StatusFailed, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.kind, res.Error.Kind)
		})
	}
}

func TestExecuteClick(t *testing.T) {
	sess := newSession(t, `<html><body>
		<button id="go">Go</button>
		<button id="off" disabled>Off</button>
	</body></html>`)
	e := newExecutor(Options{})

	res := e.Execute(context.Background(), sess, 0, task.Action{Type: task.ActionClick, Locator: css("#go")})
	require.Equal(t, task.StatusOK, res.Status)
	assert.Equal(t, []string{"Go"}, sess.Clicks)

	res = e.Execute(context.Background(), sess, 1, task.Action{Type: task.ActionClick, Locator: css("#off")})
	require.Equal(t, task.StatusFailed, res.Status)
	assert.Equal(t, crawlerrors.CodeNotInteractable, res.Error.Kind)
}

func TestExecuteSelect(t *testing.T) {
	const page = `<html><body><select id="lang">
		<option value="go">Go</option>
		<option value="rs">Rust</option>
	</select></body></html>`
	e := newExecutor(Options{})

	t.Run("by value", func(t *testing.T) {
		sess := newSession(t, page)
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionSelect, Locator: css("#lang"), Value: "rs",
		})
		require.Equal(t, task.StatusOK, res.Status)
	})

	t.Run("by label", func(t *testing.T) {
		sess := newSession(t, page)
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionSelect, Locator: css("#lang"), Value: "Rust", ByLabel: true,
		})
		require.Equal(t, task.StatusOK, res.Status)
	})

	t.Run("no such option", func(t *testing.T) {
		sess := newSession(t, page)
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionSelect, Locator: css("#lang"), Value: "zig",
		})
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, crawlerrors.CodeNoSuchOption, res.Error.Kind)
	})
}

func TestExecuteExtract(t *testing.T) {
	sess := newSession(t, `<html><body>
		<h1 id="title">  Hello  </h1>
		<p id="empty"></p>
		<a id="link" href="/next">next</a>
		<li class="item">one</li><li class="item">two</li>
	</body></html>`)
	e := newExecutor(Options{})

	t.Run("inner text first match", func(t *testing.T) {
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionExtract, Locator: css("#title"), Name: "title",
		})
		require.Equal(t, task.StatusOK, res.Status)
		assert.Equal(t, map[string]any{"title": "Hello"}, res.Data)
	})

	t.Run("empty text is valid data", func(t *testing.T) {
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionExtract, Locator: css("#empty"), Name: "empty",
		})
		require.Equal(t, task.StatusOK, res.Status)
		assert.Equal(t, map[string]any{"empty": ""}, res.Data)
	})

	t.Run("attribute", func(t *testing.T) {
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionExtract, Locator: css("#link"), Name: "href", Attribute: "href",
		})
		require.Equal(t, task.StatusOK, res.Status)
		assert.Equal(t, map[string]any{"href": "/next"}, res.Data)
	})

	t.Run("multiple", func(t *testing.T) {
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionExtract, Locator: css(".item"), Name: "items", Multiple: true,
		})
		require.Equal(t, task.StatusOK, res.Status)
		assert.Equal(t, map[string]any{"items": []string{"one", "two"}}, res.Data)
	})

	t.Run("multiple with no match is empty data", func(t *testing.T) {
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionExtract, Locator: css(".missing"), Name: "items", Multiple: true,
		})
		require.Equal(t, task.StatusOK, res.Status)
		assert.Equal(t, map[string]any{"items": []string{}}, res.Data)
	})

	t.Run("no match fails", func(t *testing.T) {
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionExtract, Locator: css("#missing"), Name: "x",
		})
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, crawlerrors.CodeNotFound, res.Error.Kind)
	})
}

func TestExecuteWait(t *testing.T) {
	t.Run("delay", func(t *testing.T) {
		sess := newSession(t, `<html><body></body></html>`)
		e := newExecutor(Options{})
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionWait, DelayMS: 10,
		})
		require.Equal(t, task.StatusOK, res.Status)
		assert.GreaterOrEqual(t, res.DurationMS, int64(10))
	})

	t.Run("state timeout", func(t *testing.T) {
		sess := newSession(t, `<html><body></body></html>`)
		e := newExecutor(Options{DefaultTimeout: 50 * time.Millisecond})
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionWait, Locator: css("#never"), State: browser.WaitStateVisible,
		})
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, crawlerrors.CodeWaitTimeout, res.Error.Kind)
	})

	t.Run("state satisfied", func(t *testing.T) {
		sess := newSession(t, `<html><body><div id="ready">ok</div></body></html>`)
		e := newExecutor(Options{})
		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionWait, Locator: css("#ready"), State: browser.WaitStateVisible,
		})
		require.Equal(t, task.StatusOK, res.Status)
	})
}

func TestExecuteScreenshot(t *testing.T) {
	t.Run("full page stored", func(t *testing.T) {
		sess := newSession(t, `<html><body></body></html>`)
		store := artifact.NewMemoryStore()
		e := newExecutor(Options{Artifacts: store})

		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionScreenshot, Name: "landing", FullPage: true,
		})
		require.Equal(t, task.StatusOK, res.Status)
		require.NotNil(t, res.ArtifactRef)
		assert.Equal(t, "landing", res.ArtifactRef.Name)
		data, ok := store.Get(res.ArtifactRef.Key)
		require.True(t, ok)
		assert.Contains(t, string(data), "fake-fullpage-screenshot")
	})

	t.Run("storage failure", func(t *testing.T) {
		sess := newSession(t, `<html><body></body></html>`)
		store := artifact.NewMemoryStore()
		store.PutErr = assert.AnError
		e := newExecutor(Options{Artifacts: store})

		res := e.Execute(context.Background(), sess, 0, task.Action{
			Type: task.ActionScreenshot, Name: "landing",
		})
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, crawlerrors.CodeStorage, res.Error.Kind)
	})
}

func loginAction() task.Action {
	return task.Action{
		Type:            task.ActionLogin,
		UsernameLocator: css("#user"),
		PasswordLocator: css("#pass"),
		SubmitLocator:   css("#submit"),
		SecretRef:       "site-creds",
		// Keep the test fast: skip the URL-change settle window.
		WaitAfterSubmitMS: 1,
	}
}

const loginPage = `<html><body><form>
	<input id="user" name="username">
	<input id="pass" name="password" type="password">
	<button id="submit">Sign in</button>
</form></body></html>`

func TestExecuteLogin(t *testing.T) {
	creds := map[string]secrets.Credentials{
		"site-creds": {Username: "alice", Password: "hunter2-raw-value"},
	}

	t.Run("fills and submits", func(t *testing.T) {
		sess := newSession(t, loginPage)
		e := newExecutor(Options{Credentials: creds})

		res := e.Execute(context.Background(), sess, 0, loginAction())
		require.Equal(t, task.StatusOK, res.Status)
		assert.Equal(t, []string{"Sign in"}, sess.Clicks)

		els, err := sess.Query(context.Background(), browser.Locator{CSS: "#user"})
		require.NoError(t, err)
		require.Len(t, els, 1)
		v, err := els[0].Attribute(context.Background(), "value")
		require.NoError(t, err)
		assert.Equal(t, "alice", v)
	})

	t.Run("missing credentials", func(t *testing.T) {
		sess := newSession(t, loginPage)
		e := newExecutor(Options{})

		res := e.Execute(context.Background(), sess, 0, loginAction())
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, crawlerrors.CodeSecretRetrieval, res.Error.Kind)
		assert.Equal(t, "credentials", res.Error.Substep)
	})

	t.Run("names first failing substep", func(t *testing.T) {
		sess := newSession(t, `<html><body><form>
			<input id="pass" type="password">
			<button id="submit">Sign in</button>
		</form></body></html>`)
		e := newExecutor(Options{Credentials: creds})

		res := e.Execute(context.Background(), sess, 0, loginAction())
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, crawlerrors.CodeNotFound, res.Error.Kind)
		assert.Equal(t, "username", res.Error.Substep)
	})

	t.Run("failure never carries credential values", func(t *testing.T) {
		sess := newSession(t, `<html><body><form>
			<input id="user"><input id="pass">
		</form></body></html>`)
		e := newExecutor(Options{Credentials: creds})

		res := e.Execute(context.Background(), sess, 0, loginAction())
		require.Equal(t, task.StatusFailed, res.Status)
		assert.Equal(t, "submit", res.Error.Substep)
		assert.NotContains(t, res.Error.Message, "hunter2-raw-value")
		assert.NotContains(t, res.Error.Message, "alice")
		assert.Nil(t, res.Data)
	})
}

func TestExecuteActionTimeoutClassification(t *testing.T) {
	rt := browsertest.NewRuntime()
	rt.AddPage("https://slow.test/", `<html></html>`)
	rt.Configure = func(s *browsertest.Session) {
		s.NavigateDelay = 500 * time.Millisecond
	}
	sess, err := rt.NewSession(context.Background(), browser.SessionConfig{})
	require.NoError(t, err)

	e := newExecutor(Options{DefaultTimeout: 30 * time.Millisecond})
	res := e.Execute(context.Background(), sess, 0, task.Action{
		Type: task.ActionNavigate, URL: "https://slow.test/",
	})
	require.Equal(t, task.StatusFailed, res.Status)
	assert.Equal(t, crawlerrors.CodeNavigationTimeout, res.Error.Kind)
}

func TestClassifyDefaultsToInternal(t *testing.T) {
	info := classify(task.ActionClick, assert.AnError)
	assert.Equal(t, crawlerrors.CodeInternal, info.Kind)
	assert.Empty(t, info.Substep)

	info = classify(task.ActionLogin, &loginError{substep: "password", err: browser.ErrNotFillable})
	assert.Equal(t, crawlerrors.CodeNotFillable, info.Kind)
	assert.Equal(t, "password", info.Substep)
	assert.True(t, strings.HasPrefix(info.Message, "login password failed"))
}
