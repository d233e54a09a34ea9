package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:       attempts,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.0, // No jitter for predictable testing
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 0.1, cfg.JitterFraction)
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var attempts int

	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	var attempts int

	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var attempts int
	expectedErr := errors.New("persistent error")

	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return expectedErr
	})

	assert.Equal(t, expectedErr, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	cfg := Config{
		MaxAttempts:       10,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		attempts.Add(1)
		return errors.New("keep failing")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, attempts.Load(), int32(1))
}

func TestDo_StopsOnContextError(t *testing.T) {
	var attempts int

	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryablePredicate(t *testing.T) {
	conflict := errors.New("conflict")
	cfg := fastConfig(5)
	cfg.Retryable = Only(conflict)

	var attempts int
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return conflict
		}
		return errors.New("permanent")
	})

	assert.EqualError(t, err, "permanent")
	assert.Equal(t, 2, attempts)
}

func TestDo_BackoffGrowsExponentially(t *testing.T) {
	cfg := fastConfig(4)
	cfg.MaxBackoff = time.Second

	var timestamps []time.Time
	err := Do(context.Background(), cfg, func() error {
		timestamps = append(timestamps, time.Now())
		return errors.New("fail")
	})

	assert.Error(t, err)
	require.Len(t, timestamps, 4)

	interval1 := timestamps[1].Sub(timestamps[0])
	interval2 := timestamps[2].Sub(timestamps[1])
	interval3 := timestamps[3].Sub(timestamps[2])

	assert.Greater(t, interval2, interval1, "second interval should be longer than first")
	assert.Greater(t, interval3, interval2, "third interval should be longer than second")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context.Canceled", context.Canceled, false},
		{"context.DeadlineExceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("some error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0, time.Second, time.Minute))
	assert.Equal(t, time.Second, Backoff(1, time.Second, time.Minute))
	assert.Equal(t, 2*time.Second, Backoff(2, time.Second, time.Minute))
	assert.Equal(t, 8*time.Second, Backoff(4, time.Second, time.Minute))
	assert.Equal(t, time.Minute, Backoff(20, time.Second, time.Minute))
}
