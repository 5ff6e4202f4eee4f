package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlerd/crawlerd/pkg/browser"
	"github.com/crawlerd/crawlerd/pkg/browser/browsertest"
)

func TestManager_OpenNavigatesAndCloseIsIdempotent(t *testing.T) {
	rt := browsertest.NewRuntime()
	rt.AddPage("https://example.com", "<html><body><h1>hi</h1></body></html>")
	mgr := browser.NewManager(rt)

	sess, err := mgr.Open(context.Background(), browser.SessionConfig{
		TaskID:     "t1",
		InitialURL: "https://example.com",
	})
	require.NoError(t, err)

	url, err := sess.CurrentURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	fakes := rt.Sessions()
	require.Len(t, fakes, 1)
	assert.Equal(t, 1, fakes[0].CloseCount(), "underlying session closed exactly once")
}

func TestManager_NavigationTimeoutClosesSession(t *testing.T) {
	rt := browsertest.NewRuntime()
	rt.Configure = func(s *browsertest.Session) {
		s.NavigateDelay = time.Second
	}
	mgr := browser.NewManager(rt)

	_, err := mgr.Open(context.Background(), browser.SessionConfig{
		TaskID:     "t1",
		InitialURL: "https://slow.example.com",
		NavTimeout: 30 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNavigationTimeout)

	fakes := rt.Sessions()
	require.Len(t, fakes, 1)
	assert.Equal(t, 1, fakes[0].CloseCount(), "failed open must release the session")
}

func TestManager_RuntimeUnavailableIsEngineFault(t *testing.T) {
	rt := browsertest.NewRuntime()
	rt.NewSessionErr = browser.ErrUnavailable
	mgr := browser.NewManager(rt)

	_, err := mgr.Open(context.Background(), browser.SessionConfig{InitialURL: "https://example.com"})
	require.Error(t, err)
	assert.True(t, browser.IsEngineFault(err))
}
