package browser

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Manager hands out one session per task and guarantees teardown. Open
// performs the initial navigation; a session that never reaches its settle
// condition is closed before the error is returned, so no half-open
// session ever escapes.
type Manager struct {
	runtime Runtime
}

// NewManager creates a Manager backed by the provided runtime.
func NewManager(runtime Runtime) *Manager {
	return &Manager{runtime: runtime}
}

// Open creates a session and navigates it to cfg.InitialURL. The returned
// session's Close is idempotent; callers defer it on every exit path.
func (m *Manager) Open(ctx context.Context, cfg SessionConfig) (Session, error) {
	if m == nil || m.runtime == nil {
		return nil, ErrUnavailable
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if !cfg.WaitUntil.Valid() {
		cfg.WaitUntil = WaitUntilDOMContentLoaded
	}
	if cfg.Viewport == (Viewport{}) {
		cfg.Viewport = DefaultViewport
	}

	sess, err := m.runtime.NewSession(ctx, cfg)
	if err != nil {
		return nil, WrapSessionError("launch_failed", "session creation failed", err)
	}
	managed := &managedSession{Session: sess}
	recordSessionOpened()

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	defer cancel()

	start := time.Now()
	err = managed.Navigate(navCtx, cfg.InitialURL, NavigateOptions{WaitUntil: cfg.WaitUntil})
	recordNavigation(time.Since(start), err == nil)
	if err != nil {
		_ = managed.Close()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNavigationTimeout) {
			return nil, WrapSessionError("navigation_timeout", "initial navigation timed out", ErrNavigationTimeout)
		}
		return nil, err
	}

	return managed, nil
}

// managedSession makes Close idempotent and keeps the session counters
// honest when Close is invoked from multiple exit paths.
type managedSession struct {
	Session

	once     sync.Once
	closeErr error
}

func (s *managedSession) Close() error {
	s.once.Do(func() {
		s.closeErr = s.Session.Close()
		recordSessionClosed()
	})
	return s.closeErr
}
