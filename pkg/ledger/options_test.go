package ledger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/agent-escrow/pkg/internal/retry"
	"github.com/jdziat/agent-escrow/pkg/telemetry"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.NotNil(t, cfg.Logger)
	assert.Nil(t, cfg.Metrics)
	assert.Equal(t, 100, cfg.EventBuffer)
	assert.Equal(t, 8, cfg.CreateRetry.MaxAttempts)
}

func TestOptions(t *testing.T) {
	cfg := defaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := telemetry.Discard()

	WithLogger(logger).ApplyLedger(&cfg)
	WithMetrics(rec).ApplyLedger(&cfg)
	WithEventBuffer(5).ApplyLedger(&cfg)
	WithCreateRetry(retry.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond}).ApplyLedger(&cfg)

	assert.Same(t, logger, cfg.Logger)
	assert.Same(t, rec, cfg.Metrics)
	assert.Equal(t, 5, cfg.EventBuffer)
	assert.Equal(t, 2, cfg.CreateRetry.MaxAttempts)
}

func TestOptions_IgnoreInvalidValues(t *testing.T) {
	cfg := defaultConfig()
	before := cfg.Logger

	WithLogger(nil).ApplyLedger(&cfg)
	WithEventBuffer(0).ApplyLedger(&cfg)

	assert.Same(t, before, cfg.Logger)
	assert.Equal(t, 100, cfg.EventBuffer)
}

func TestNew_ForcesSequenceConflictRetryPredicate(t *testing.T) {
	l := New(nil, nil, nil, nil)
	assert.NotNil(t, l.config.CreateRetry.Retryable)
}
