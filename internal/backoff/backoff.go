// Package backoff computes the due-time engine's retry delay and
// provides a small retry loop for transient store faults, adapted from
// the teacher's internal/backoff/retry.go: the same exponential-growth
// shape, split here into a pure calculation (NextDelay, used by
// internal/due) and the original live-wait loop (Retry, used by the
// runner around a single invocation's commit step).
package backoff

import (
	"context"
	"time"
)

// NextDelay returns the backoff delay after errorCount consecutive
// failures: min(base*2^(errorCount-1), cap). errorCount must be >= 1.
func NextDelay(base time.Duration, errorCount int, cap time.Duration) time.Duration {
	if errorCount < 1 {
		errorCount = 1
	}
	delay := base
	for i := 1; i < errorCount; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

// Operation is a unit of work that may fail transiently.
type Operation func(ctx context.Context) error

// IsRetriable reports whether an error should be retried.
type IsRetriable func(err error) bool

// Retry runs op, retrying with exponential backoff (starting at base,
// capped at cap, up to maxAttempts) while isRetriable(err) is true. If
// isRetriable is nil every error is considered retriable.
func Retry(ctx context.Context, op Operation, base, cap time.Duration, maxAttempts int, isRetriable IsRetriable) error {
	if isRetriable == nil {
		isRetriable = func(error) bool { return true }
	}

	delay := base
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetriable(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()

		delay *= 2
		if delay > cap {
			delay = cap
		}
	}
	return lastErr
}
