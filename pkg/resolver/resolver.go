// Package resolver turns oracle callbacks into terminal job transitions.
//
// A callback is accepted only from the configured router. The first
// accepted callback for a pending job decides it: an oracle error or an
// undecodable response fails the job and queues a refund to the payer, a
// decodable response fulfills it and queues a payout to the provider's
// current payout address. Later callbacks are rejected without side effects.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/oracle"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// Settler attempts to settle a queued transfer.
type Settler interface {
	Settle(ctx context.Context, transferID string) error
}

// Outcome is the result of an accepted callback.
type Outcome struct {
	Job      *core.Job
	Transfer *core.Transfer
	Reason   string
}

// Resolver applies oracle callbacks to the ledger.
type Resolver struct {
	ledger  *ledger.Ledger
	settler Settler
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Resolver.
type Option interface {
	ApplyResolver(*Resolver)
}

type optionFunc func(*Resolver)

func (f optionFunc) ApplyResolver(r *Resolver) { f(r) }

// WithSettler makes the resolver attempt settlement right after each
// transition. Failures are left to the settlement worker.
func WithSettler(s Settler) Option {
	return optionFunc(func(r *Resolver) {
		r.settler = s
	})
}

// WithLogger sets the logger. Defaults to the ledger's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(r *Resolver) {
		r.now = now
	})
}

// New creates a resolver for l.
func New(l *ledger.Ledger, opts ...Option) *Resolver {
	r := &Resolver{
		ledger: l,
		logger: l.Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt.ApplyResolver(r)
	}
	return r
}

// Callback adapts Resolve to oracle.CallbackFunc.
func (r *Resolver) Callback(ctx context.Context, caller common.Address, handle string, response, errBytes []byte) error {
	_, err := r.Resolve(ctx, caller, handle, response, errBytes)
	return err
}

var _ oracle.CallbackFunc = (*Resolver)(nil).Callback

// Resolve records the oracle's answer for handle. caller must be the
// configured router. The raw bytes are kept on the job whatever the outcome.
func (r *Resolver) Resolve(ctx context.Context, caller common.Address, handle string, response, errBytes []byte) (*Outcome, error) {
	start := r.now()
	store := r.ledger.Storage()

	settings, err := store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !security.SameAddress(settings.Router, caller) {
		r.logger.Warn("rejected callback from untrusted caller",
			"caller", caller.Hex(),
			"request_handle", handle)
		return nil, errorsmod.Wrapf(core.ErrUnauthorizedCaller, "caller %s", caller.Hex())
	}

	job, err := store.GetJob(ctx, handle)
	if errors.Is(err, core.ErrJobNotFound) {
		return nil, errorsmod.Wrap(core.ErrUnknownRequest, handle)
	}
	if err != nil {
		return nil, err
	}
	if job.Status != core.StatusPending {
		return nil, errorsmod.Wrapf(core.ErrAlreadyResolved, "job %d is %s", job.JobID, job.Status)
	}

	res := core.Resolution{
		RequestHandle: handle,
		RawResponse:   response,
		RawError:      errBytes,
		ResolvedAt:    start,
	}

	var reason string
	switch output, decodeErr := oracle.DecodeOutput(response); {
	case len(errBytes) > 0:
		reason = security.SanitizeErrorMessage(string(errBytes))
		if strings.TrimSpace(reason) == "" {
			reason = core.ExecutionFailedReason
		}
	case decodeErr != nil:
		r.logger.Debug("undecodable oracle response", "request_handle", handle, "error", decodeErr)
		reason = core.DecodingFailedReason
	default:
		provider, err := r.ledger.Directory().GetProvider(ctx, job.ProviderID)
		if err != nil {
			return nil, errorsmod.Wrapf(err, "payout address for job %d", job.JobID)
		}
		res.Status = core.StatusFulfilled
		res.Output = output
		return r.commit(ctx, start, job, res,
			&core.Transfer{Kind: core.TransferPayout, Recipient: provider.PayoutAddress},
			&core.JobFulfilled{JobID: job.JobID, Output: output, RequestHandle: handle, Timestamp: start})
	}

	res.Status = core.StatusFailed
	res.FailureReason = reason
	return r.commit(ctx, start, job, res,
		&core.Transfer{Kind: core.TransferRefund, Recipient: job.Payer},
		&core.JobFailed{JobID: job.JobID, Reason: reason, RequestHandle: handle, Timestamp: start})
}

// commit writes the transition, then notifies subscribers and attempts
// settlement.
func (r *Resolver) commit(ctx context.Context, start time.Time, job *core.Job, res core.Resolution, transfer *core.Transfer, event core.Event) (*Outcome, error) {
	resolved, err := r.ledger.Storage().ResolveJob(ctx, res, transfer, event)
	if err != nil {
		return nil, err
	}

	metrics := r.ledger.Metrics()
	metrics.ResolveSince(start)
	if res.Status == core.StatusFulfilled {
		metrics.JobFulfilled()
		r.logger.Info("job fulfilled",
			"job_id", resolved.JobID,
			"request_handle", resolved.RequestHandle,
			"transfer_id", transfer.ID)
	} else {
		metrics.JobFailed()
		r.logger.Info("job failed",
			"job_id", resolved.JobID,
			"request_handle", resolved.RequestHandle,
			"reason", res.FailureReason,
			"transfer_id", transfer.ID)
	}

	r.ledger.Emit(event)
	if res.Status == core.StatusFulfilled {
		r.ledger.CallFulfilledHooks(ctx, resolved)
	} else {
		r.ledger.CallFailedHooks(ctx, resolved, res.FailureReason)
	}

	if r.settler != nil {
		if err := r.settler.Settle(ctx, transfer.ID); err != nil {
			r.logger.Warn("inline settlement failed; transfer left for the worker",
				"job_id", job.JobID,
				"transfer_id", transfer.ID,
				"error", err)
		}
	}

	return &Outcome{Job: resolved, Transfer: transfer, Reason: res.FailureReason}, nil
}
