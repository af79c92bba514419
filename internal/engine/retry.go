package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const defaultInitialBackoff = 500 * time.Millisecond

// retrying retries rate-limited calls with exponential backoff.
type retrying struct {
	Engine
	maxRetries     int
	initialBackoff time.Duration
}

// WithRetry wraps e so that ErrRateLimited failures are retried up to
// maxRetries attempts in total. Other errors are returned immediately.
// maxRetries <= 1 returns e unchanged.
func WithRetry(e Engine, maxRetries int) Engine {
	if maxRetries <= 1 {
		return e
	}
	return &retrying{Engine: e, maxRetries: maxRetries, initialBackoff: defaultInitialBackoff}
}

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := range r.maxRetries {
		text, err := r.Engine.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}

		lastErr = err
		if attempt < r.maxRetries-1 {
			backoff := time.Duration(float64(r.initialBackoff) * math.Pow(2, float64(attempt)))
			slog.Debug("provider rate limited, backing off", "engine", r.Name(), "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", r.maxRetries, lastErr)
}
