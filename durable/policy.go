package durable

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// StepPolicy controls re-execution of a failing step function.
// The zero value runs each step once.
type StepPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable filters errors worth another attempt. Nil retries every
	// error except context cancellation.
	Retryable func(error) bool
}

// DefaultStepPolicy runs a step once; BaseDelay and MaxDelay apply when
// MaxAttempts is raised.
func DefaultStepPolicy() StepPolicy {
	return StepPolicy{
		MaxAttempts: 1,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (p StepPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backoff returns the delay before the given retry (1 for the first retry).
// Doubling stops at MaxDelay and saturates instead of overflowing.
func (p StepPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p StepPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func runWithPolicy[T any](ctx context.Context, p StepPolicy, logger *slog.Logger, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := p.attempts()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			logger.Debug("retrying step", "step", name, "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !p.retryable(err) {
			break
		}
	}
	return zero, lastErr
}
