package agent

import (
	"context"
	"log/slog"
	"time"
)

// KeepAlive periodically requests a token so the provider refreshes the
// session before it lapses and invalidation is noticed while idle.
type KeepAlive struct {
	Session  Session
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewKeepAlive returns a worker ticking every interval. A non-positive
// interval defaults to five minutes.
func NewKeepAlive(session Session, logger *slog.Logger, interval time.Duration) *KeepAlive {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &KeepAlive{
		Session:  session,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop.
func (k *KeepAlive) Start() {
	go k.run()
	k.Logger.Info("keepalive started", "interval", k.Interval)
}

// Stop blocks until an in-progress tick has finished.
func (k *KeepAlive) Stop() {
	close(k.stopCh)
	<-k.doneCh
	k.Logger.Info("keepalive stopped")
}

func (k *KeepAlive) run() {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.tick()
		case <-k.stopCh:
			return
		}
	}
}

func (k *KeepAlive) tick() {
	if !k.Session.Ready() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.Interval)
	defer cancel()

	if _, err := k.Session.GetToken(ctx); err != nil {
		k.Logger.Debug("keepalive token request failed", "err", err)
		return
	}
	k.Logger.Debug("keepalive token refreshed")
}
