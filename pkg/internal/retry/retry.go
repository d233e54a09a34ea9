// Package retry runs operations with jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config holds configuration for retry with backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 5
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 5s
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier applied to backoff after each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	// Default: 0.1 (10% jitter)
	JitterFraction float64

	// Retryable reports whether an error is worth another attempt.
	// Nil means IsRetryable.
	Retryable func(error) bool
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// Do executes the operation with exponential backoff on failure.
// It respects context cancellation and returns the last error if all attempts fail.
func Do(ctx context.Context, config Config, operation func() error) error {
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt >= config.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(backoff) * config.JitterFraction * (rand.Float64()*2 - 1))
		sleepDuration := backoff + jitter
		if sleepDuration < 0 {
			sleepDuration = backoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepDuration):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}

// IsRetryable determines if an error is worth retrying.
// Context errors are permanent; everything else is assumed transient
// (connection resets, lock timeouts, deadlocks).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Only returns a predicate that retries when err matches one of targets.
func Only(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// Backoff returns the delay before settlement attempt n (1-based): base
// doubled per prior attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
