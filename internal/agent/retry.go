package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasserver/atlasai/internal/api"
)

// Retry configuration defaults
const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
	// MaxTotalBackoff caps the time one provider may spend waiting between
	// retries over a whole invocation.
	MaxTotalBackoff = 15 * time.Second
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CalculateBackoff returns the wait before retry number attempt (0-based)
func CalculateBackoff(attempt int) time.Duration {
	backoff := InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * BackoffMultiplier)
		if backoff > MaxBackoff {
			backoff = MaxBackoff
			break
		}
	}
	return backoff
}

// Retrier carries the retry budget of one provider branch. Not safe for
// concurrent use; each branch has its own.
type Retrier struct {
	maxRetries int
	waited     time.Duration
	sleep      SleepFunc
	onRetry    func(attempt int, wait time.Duration, err error)
}

// NewRetrier allows up to maxRetries retries per call, and at most
// MaxTotalBackoff of waiting across all calls.
func NewRetrier(maxRetries int, sleep SleepFunc, onRetry func(attempt int, wait time.Duration, err error)) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Retrier{maxRetries: maxRetries, sleep: sleep, onRetry: onRetry}
}

// Waited returns the total time spent waiting so far
func (r *Retrier) Waited() time.Duration {
	return r.waited
}

// RetryableFunc is a function that can be retried
type RetryableFunc[T any] func() (T, error)

// WithRetry executes fn, retrying retryable provider failures with
// exponential backoff. Cancellation of ctx is returned unwrapped.
func WithRetry[T any](ctx context.Context, r *Retrier, fn RetryableFunc[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !api.IsRetryable(err) {
			return zero, err
		}
		if attempt == r.maxRetries {
			break
		}

		wait := CalculateBackoff(attempt)
		remaining := MaxTotalBackoff - r.waited
		if remaining <= 0 {
			return zero, fmt.Errorf("retry budget (%s) exhausted: %w", MaxTotalBackoff, lastErr)
		}
		if wait > remaining {
			wait = remaining
		}
		if r.onRetry != nil {
			r.onRetry(attempt+1, wait, err)
		}
		if err := r.sleep(ctx, wait); err != nil {
			return zero, err
		}
		r.waited += wait
	}

	return zero, fmt.Errorf("max retry attempts (%d) exceeded: %w", r.maxRetries, lastErr)
}
