package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/internal/retry"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/resolver"
)

// Settler moves the funds of queued transfers through a Bank.
type Settler struct {
	ledger *ledger.Ledger
	bank   core.Bank
	config Config
	logger *slog.Logger
	now    func() time.Time
}

var _ resolver.Settler = (*Settler)(nil)

// NewSettler creates a settler for transfers recorded in l.
func NewSettler(l *ledger.Ledger, bank core.Bank, opts ...Option) *Settler {
	config := defaultConfig()
	config.Logger = l.Logger()
	for _, opt := range opts {
		opt.ApplySettlement(&config)
	}
	return &Settler{
		ledger: l,
		bank:   bank,
		config: config,
		logger: config.Logger,
		now:    time.Now,
	}
}

// ID returns the lock owner this settler records on claims.
func (s *Settler) ID() string {
	return s.config.SettlerID
}

// Settle attempts one transfer. Settling an already settled transfer is a
// no-op. A transfer locked by another settler yields ErrTransferNotOwned.
// When the bank refuses, the failure is recorded with the next attempt time
// and the bank's error is returned.
func (s *Settler) Settle(ctx context.Context, transferID string) error {
	store := s.ledger.Storage()

	var claimed *core.Transfer
	err := retry.Do(ctx, s.config.StorageRetry, func() error {
		var err error
		claimed, err = store.ClaimTransfer(ctx, transferID, s.config.SettlerID, s.config.Lease)
		return err
	})
	if err != nil {
		return err
	}
	if claimed == nil {
		t, err := store.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status == core.TransferStatusSettled {
			return nil
		}
		return errorsmod.Wrapf(core.ErrTransferNotOwned, "transfer %s held by %s", transferID, t.LockedBy)
	}

	start := s.now()
	if bankErr := s.bank.Transfer(ctx, claimed.ID, claimed.RecipientAddress(), claimed.Amount); bankErr != nil {
		s.recordFailure(ctx, claimed, bankErr)
		return bankErr
	}

	var settled *core.TransferSettled
	err = retry.Do(ctx, s.config.StorageRetry, func() error {
		var err error
		settled, err = store.MarkTransferSettled(ctx, claimed.ID, s.config.SettlerID)
		return err
	})
	if err != nil {
		// Funds moved but the record did not; the lease expires and the
		// bank absorbs the repeat by ref.
		s.logger.Error("transfer paid but not recorded",
			"transfer_id", claimed.ID,
			"job_id", claimed.JobID,
			"error", err)
		return err
	}

	s.ledger.Metrics().TransferSettled()
	s.logger.Info("transfer settled",
		"transfer_id", settled.TransferID,
		"job_id", settled.JobID,
		"kind", settled.TransferKind,
		"recipient", settled.Recipient,
		"amount", settled.Amount.String(),
		"attempts", claimed.Attempts,
		"duration", s.now().Sub(start))
	s.ledger.Emit(settled)
	s.ledger.CallSettledHooks(ctx, settled)
	return nil
}

func (s *Settler) recordFailure(ctx context.Context, t *core.Transfer, cause error) {
	next := s.now().Add(retry.Backoff(t.Attempts, s.config.RetryBase, s.config.RetryMax))
	s.ledger.Metrics().TransferFailed()
	s.logger.Warn("transfer failed",
		"transfer_id", t.ID,
		"job_id", t.JobID,
		"attempts", t.Attempts,
		"next_attempt_at", next,
		"error", cause)

	err := retry.Do(ctx, s.config.StorageRetry, func() error {
		return s.ledger.Storage().MarkTransferFailed(ctx, t.ID, s.config.SettlerID, cause.Error(), next)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("failed to record transfer failure",
			"transfer_id", t.ID,
			"error", err)
	}
}
