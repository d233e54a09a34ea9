package ledger

import (
	"log/slog"
	"time"

	"github.com/jdziat/agent-escrow/pkg/internal/retry"
	"github.com/jdziat/agent-escrow/pkg/telemetry"
)

// Config holds ledger configuration.
type Config struct {
	Logger *slog.Logger
	// Metrics receives lifecycle counters. Nil records nothing.
	Metrics *telemetry.Recorder
	// CreateRetry governs retries when id allocation races another writer.
	CreateRetry retry.Config
	// EventBuffer is the channel size of each Events subscription.
	EventBuffer int
}

func defaultConfig() Config {
	createRetry := retry.Config{
		MaxAttempts:       8,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        250 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
	return Config{
		Logger:      slog.Default(),
		CreateRetry: createRetry,
		EventBuffer: 100,
	}
}

// Option configures a Ledger.
type Option interface {
	ApplyLedger(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyLedger(c *Config) { f(c) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *telemetry.Recorder) Option {
	return optionFunc(func(c *Config) {
		c.Metrics = r
	})
}

// WithCreateRetry overrides the id-allocation retry policy.
func WithCreateRetry(cfg retry.Config) Option {
	return optionFunc(func(c *Config) {
		c.CreateRetry = cfg
	})
}

// WithEventBuffer sets the per-subscriber channel size.
func WithEventBuffer(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.EventBuffer = n
		}
	})
}
