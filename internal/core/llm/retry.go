package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// RetryPolicy bounds retries of retryable embedding failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration // doubles on each retry
	MaxDelay    time.Duration // 0 means uncapped
}

// DefaultRetryPolicy allows four attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Do runs operation until it succeeds, returns a non-retryable error, or the attempts run out.
// The error from the last attempt is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, operation func() error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("embedding succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !IsRetryable(lastErr) || attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt)
		slog.Warn("embedding failed, retrying", "attempt", attempt, "maxAttempts", p.MaxAttempts, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
