// Package retry wraps operations with capped exponential backoff.
// Only failures that declare themselves retryable are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jonathan/news-ingest/internal/config"
)

// Retryable is implemented by errors that know whether a retry can help.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err (or any error it wraps) is a transient failure.
// Context cancellation and unclassified errors are terminal.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Retryable is always false: an exhausted budget is terminal.
func (e *ExhaustedError) Retryable() bool {
	return false
}

// Policy configures the backoff schedule
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// OnRetry, when set, is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns a policy with the default budget (10 attempts, 1s..10s, x2).
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: config.DefaultMaxAttempts,
		MinDelay:    time.Duration(config.DefaultMinDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(config.DefaultMaxDelayMS) * time.Millisecond,
		Multiplier:  config.DefaultMultiplier,
	}
}

// FromConfig builds a policy from a retry configuration block.
func FromConfig(c config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: c.MaxAttempts,
		MinDelay:    c.MinDelay(),
		MaxDelay:    c.MaxDelay(),
		Multiplier:  c.Multiplier,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
// The sequence is non-decreasing and capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.MinDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, fails terminally, or the attempt budget runs out.
// The returned attempt count includes the final attempt.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return attempt - 1, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsRetryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
