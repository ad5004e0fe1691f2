package authsdk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

type loginState int

const (
	loginIdle loginState = iota
	loginInProgress
)

// coordinator serialises logins. While a login is in progress token requests
// wait for it and session-invalidated signals are ignored.
type coordinator struct {
	mu    sync.Mutex
	state loginState
	idle  chan struct{} // closed while idle
}

func newCoordinator() *coordinator {
	c := &coordinator{idle: make(chan struct{})}
	close(c.idle)
	return c
}

// tryBegin moves Idle to LoginInProgress. It reports false if a login is
// already running.
func (c *coordinator) tryBegin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == loginInProgress {
		return false
	}
	c.state = loginInProgress
	c.idle = make(chan struct{})
	return true
}

// begin waits for any running login to finish, then starts one.
func (c *coordinator) begin(ctx context.Context) error {
	for {
		if c.tryBegin() {
			return nil
		}
		if err := c.waitIdle(ctx); err != nil {
			return err
		}
	}
}

func (c *coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == loginInProgress {
		c.state = loginIdle
		close(c.idle)
	}
}

func (c *coordinator) inProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == loginInProgress
}

// waitIdle blocks until no login is in progress.
func (c *coordinator) waitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

// onSessionState is registered with the identity provider. Only
// session-invalidated signals raised while no login is running are acted on.
func (m *Manager) onSessionState(state SessionState) {
	log := m.log.With("session_state", state.String())

	if !state.invalidatesSession() {
		log.Debug("session state changed")
		return
	}
	if m.coord.inProgress() {
		log.Debug("session invalidated during login, ignoring")
		return
	}

	go m.recoverSession(log)
}

// recoverSession reacts to an invalidated session: with stored credentials
// it signs in again, otherwise it tears the session down and tells the
// listener. Either way it holds the coordinator, so logins and token
// requests wait until it is done. The listener is told after the
// coordinator is released.
func (m *Manager) recoverSession(log *slog.Logger) {
	ctx := m.baseCtx

	if !m.coord.tryBegin() {
		log.Debug("login already running, not recovering")
		return
	}

	creds, err := m.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoCredentials) {
			log.Warn("reading stored credentials failed", "err", err)
		}

		log.Info("session invalidated, signing out")
		_ = m.DeleteAuthentication(ctx)
		m.coord.end()
		m.notifyLogout()
		return
	}

	log.Info("session invalidated, signing in again")
	if err := m.login(ctx, creds); err != nil {
		m.coord.end()
		m.recorder.Relogin(OutcomeFailure)
		log.Warn("silent re-login failed", "err", err)
		m.notifyLogout()
		return
	}

	m.coord.end()
	m.recorder.Relogin(OutcomeSuccess)
}

func (m *Manager) notifyLogout() {
	m.recorder.Logout()
	if m.listener != nil {
		m.listener.Logout()
	}
}
