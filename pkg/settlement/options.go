package settlement

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/internal/retry"
	"github.com/jdziat/agent-escrow/pkg/resolver"
	"github.com/jdziat/agent-escrow/pkg/schedule"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// Config holds settler and worker configuration.
type Config struct {
	SettlerID    string
	Lease        time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration
	PollInterval time.Duration
	Concurrency  int
	BatchSize    int
	StorageRetry retry.Config
	Logger       *slog.Logger

	expiry *expiryConfig
}

type expiryConfig struct {
	resolver  *resolver.Resolver
	olderThan time.Duration
	schedule  schedule.Schedule
}

func defaultConfig() Config {
	storageRetry := retry.DefaultConfig()
	storageRetry.Retryable = func(err error) bool {
		return retry.IsRetryable(err) && !errors.Is(err, core.ErrTransferNotOwned)
	}
	return Config{
		SettlerID:    uuid.New().String(),
		Lease:        time.Minute,
		RetryBase:    time.Second,
		RetryMax:     10 * time.Minute,
		PollInterval: 500 * time.Millisecond,
		Concurrency:  4,
		BatchSize:    50,
		StorageRetry: storageRetry,
		Logger:       slog.Default(),
	}
}

// Option configures a Settler or Worker.
type Option interface {
	ApplySettlement(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplySettlement(c *Config) { f(c) }

// WithSettlerID sets the lock owner recorded on claimed transfers.
func WithSettlerID(id string) Option {
	return optionFunc(func(c *Config) {
		if id != "" {
			c.SettlerID = id
		}
	})
}

// WithLease sets how long a claim holds a transfer before another settler
// may take it over.
func WithLease(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Lease = d
		}
	})
}

// WithBackoff sets the delay between attempts on a failing transfer. The
// delay doubles per attempt from base, capped at max.
func WithBackoff(base, max time.Duration) Option {
	return optionFunc(func(c *Config) {
		if base > 0 {
			c.RetryBase = base
		}
		if max >= c.RetryBase {
			c.RetryMax = max
		}
	})
}

// WithPollInterval sets how often the worker looks for due transfers.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// Concurrency sets how many transfers the worker settles at once.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) Option {
	return optionFunc(func(c *Config) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// WithBatchSize sets how many due transfers one poll loads.
func WithBatchSize(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.BatchSize = n
		}
	})
}

// WithStorageRetry sets the retry policy for storage calls. The predicate
// is kept from the default when cfg has none.
func WithStorageRetry(cfg retry.Config) Option {
	return optionFunc(func(c *Config) {
		if cfg.Retryable == nil {
			cfg.Retryable = c.StorageRetry.Retryable
		}
		c.StorageRetry = cfg
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithExpiry makes the worker fail pending jobs older than olderThan on the
// given schedule, refunding their payers. A non-positive olderThan disables
// the sweep.
func WithExpiry(r *resolver.Resolver, olderThan time.Duration, s schedule.Schedule) Option {
	return optionFunc(func(c *Config) {
		if r == nil || olderThan <= 0 || s == nil {
			c.expiry = nil
			return
		}
		c.expiry = &expiryConfig{resolver: r, olderThan: olderThan, schedule: s}
	})
}
