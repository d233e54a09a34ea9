package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/dispatch"
	"github.com/jdziat/agent-escrow/pkg/internal/retry"
	"github.com/jdziat/agent-escrow/pkg/security"
	"github.com/jdziat/agent-escrow/pkg/telemetry"
)

// Ledger records jobs and broadcasts escrow notifications.
type Ledger struct {
	storage    core.Storage
	directory  core.Directory
	bank       core.Bank
	dispatcher *dispatch.Dispatcher
	config     Config

	// Serializes creations made through this instance. Writers in other
	// processes are caught by the sequence compare-and-swap.
	createMu sync.Mutex

	mu sync.RWMutex

	// Hooks
	onCreated   []func(context.Context, *core.Job)
	onFulfilled []func(context.Context, *core.Job)
	onFailed    []func(context.Context, *core.Job, string)
	onSettled   []func(context.Context, *core.TransferSettled)

	// Event stream
	eventSubs []chan core.Event
}

// CreateJobRequest is a payer's request to commission a provider.
type CreateJobRequest struct {
	ProviderID uint64
	Payer      string
	Input      []byte
	Source     string
	Secrets    []byte
	ExtraArgs  []string
	// Funds is the value attached to the request. It must equal the
	// provider's current price.
	Funds core.Amount
}

// New creates a ledger over storage, reading providers from directory,
// submitting requests to oracle and collecting job prices through bank.
func New(storage core.Storage, directory core.Directory, oracle core.Oracle, bank core.Bank, opts ...Option) *Ledger {
	config := defaultConfig()
	for _, opt := range opts {
		opt.ApplyLedger(&config)
	}
	config.CreateRetry.Retryable = retry.Only(core.ErrSequenceConflict)

	return &Ledger{
		storage:    storage,
		directory:  directory,
		bank:       bank,
		dispatcher: dispatch.New(storage, oracle, config.Logger),
		config:     config,
	}
}

// Storage returns the underlying storage.
func (l *Ledger) Storage() core.Storage {
	return l.storage
}

// Directory returns the provider directory.
func (l *Ledger) Directory() core.Directory {
	return l.directory
}

// Bank returns the bank that holds escrowed funds.
func (l *Ledger) Bank() core.Bank {
	return l.bank
}

// Logger returns the ledger's logger.
func (l *Ledger) Logger() *slog.Logger {
	return l.config.Logger
}

// Metrics returns the metrics recorder, which may be nil.
func (l *Ledger) Metrics() *telemetry.Recorder {
	return l.config.Metrics
}

// CreateJob validates req against the provider directory, collects the
// price from the payer, dispatches the oracle request and records the
// pending job. Validation failures leave no state behind; a failure after
// collection returns the funds to the payer.
func (l *Ledger) CreateJob(ctx context.Context, req CreateJobRequest) (*core.Job, error) {
	payer, err := security.NormalizeAddress(req.Payer)
	if err != nil {
		return nil, errorsmod.Wrap(err, "payer")
	}

	provider, err := l.directory.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Active {
		return nil, errorsmod.Wrapf(core.ErrProviderInactive, "provider %d", provider.ID)
	}
	if !req.Funds.Equals(provider.Price) {
		return nil, errorsmod.Wrapf(core.ErrAmountMismatch, "supplied %s, price %s", req.Funds, provider.Price)
	}
	if err := security.ValidateJobPayload(req.Input, req.Source, req.Secrets, req.ExtraArgs); err != nil {
		return nil, err
	}

	hold := "hold-" + uuid.NewString()
	if err := l.bank.Collect(ctx, hold, common.HexToAddress(payer), req.Funds); err != nil {
		return nil, err
	}

	start := time.Now()
	handle, err := l.dispatcher.Submit(ctx, dispatch.Request{
		Source:  req.Source,
		Secrets: req.Secrets,
		Args:    dispatch.BuildArgs(provider.Endpoint, req.Input, req.ExtraArgs),
	})
	l.config.Metrics.DispatchSince(start)
	if err != nil {
		l.release(ctx, hold, payer, req.Funds)
		return nil, err
	}

	job := &core.Job{
		RequestHandle:  handle,
		ProviderID:     provider.ID,
		Payer:          payer,
		EscrowedAmount: req.Funds,
		Input:          req.Input,
		Status:         core.StatusPending,
	}

	created, err := l.store(ctx, job)
	if err != nil {
		// The oracle already holds the request; its callback will be
		// rejected as unknown.
		l.config.Logger.Error("failed to record dispatched job",
			"request_handle", handle,
			"provider_id", provider.ID,
			"error", err)
		l.release(ctx, hold, payer, req.Funds)
		return nil, err
	}

	l.config.Logger.Info("job created",
		"job_id", job.JobID,
		"request_handle", handle,
		"provider_id", provider.ID,
		"amount", job.EscrowedAmount.String())
	l.config.Metrics.JobCreated()
	l.Emit(created)
	l.CallCreatedHooks(ctx, job)
	return job, nil
}

// release returns a collected hold to the payer.
func (l *Ledger) release(ctx context.Context, hold, payer string, amount core.Amount) {
	err := l.bank.Transfer(context.WithoutCancel(ctx), hold+"-release", common.HexToAddress(payer), amount)
	if err != nil {
		l.config.Logger.Error("failed to release collected funds",
			"hold", hold,
			"payer", payer,
			"amount", amount.String(),
			"error", err)
	}
}

func (l *Ledger) store(ctx context.Context, job *core.Job) (*core.JobCreated, error) {
	l.createMu.Lock()
	defer l.createMu.Unlock()

	var created *core.JobCreated
	err := retry.Do(ctx, l.config.CreateRetry, func() error {
		var err error
		created, err = l.storage.CreateJob(ctx, job)
		return err
	})
	return created, err
}

// LookupJob returns the job for a request handle.
func (l *Ledger) LookupJob(ctx context.Context, requestHandle string) (*core.Job, error) {
	return l.storage.GetJob(ctx, requestHandle)
}

// LookupJobByID returns the job with the given id.
func (l *Ledger) LookupJobByID(ctx context.Context, jobID uint64) (*core.Job, error) {
	return l.storage.GetJobByID(ctx, jobID)
}

// ListJobs returns jobs matching filter and the total match count.
func (l *Ledger) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, int64, error) {
	if filter.Payer != "" {
		payer, err := security.NormalizeAddress(filter.Payer)
		if err != nil {
			return nil, 0, err
		}
		filter.Payer = payer
	}
	return l.storage.ListJobs(ctx, filter)
}

// NextJobID returns the id the next job will receive.
func (l *Ledger) NextJobID(ctx context.Context) (uint64, error) {
	return l.storage.NextJobID(ctx)
}
