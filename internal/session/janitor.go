package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Janitor deletes sessions idle for longer than ttl.
type Janitor struct {
	sweeper Sweeper
	ttl     time.Duration
	poll    time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewJanitor creates a Janitor. If pollInterval is <= 0, it defaults to one
// minute.
func NewJanitor(sweeper Sweeper, ttl, pollInterval time.Duration) *Janitor {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Janitor{
		sweeper: sweeper,
		ttl:     ttl,
		poll:    pollInterval,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("session sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(j.poll):
		}
	}
}

// RunOnce deletes every session not updated within ttl and returns how many
// were removed. A ttl <= 0 keeps sessions forever.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	if j.ttl <= 0 {
		return 0, nil
	}
	n, err := j.sweeper.DeleteIdleBefore(ctx, j.now().Add(-j.ttl))
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}
	if n > 0 {
		j.logger.Info("expired idle sessions", "count", n)
	}
	return n, nil
}
