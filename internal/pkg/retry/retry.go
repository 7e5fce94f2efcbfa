// Package retry implements a small bounded retry policy for transient
// store errors. Attempt count and backoff are plain configuration values.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradepulse/internal/logger"
)

// Policy bounds how often an operation is retried before its error is
// surfaced to the caller.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultPolicy matches the store defaults: three attempts, 200ms apart.
var DefaultPolicy = Policy{Attempts: 3, Backoff: 200 * time.Millisecond}

// Do runs fn up to p.Attempts times. Context errors are never retried;
// any other error is treated as transient until attempts are exhausted.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if i == attempts {
			break
		}
		logger.Warnf("retry: %s attempt %d/%d failed: %v", op, i, attempts, lastErr)
		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
