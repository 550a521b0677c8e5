package ai

import (
	"context"
	"errors"
	"time"
)

// retry policy for provider calls: transient failures back off
// exponentially, a small fixed number of times. Context cancellation is
// never retried.
const (
	maxAttempts = 3
	baseDelay   = 250 * time.Millisecond
)

// Retry runs op up to maxAttempts times with exponential backoff,
// honoring ctx between attempts. The last error is returned when every
// attempt fails.
func Retry(ctx context.Context, op func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
