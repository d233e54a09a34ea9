// Package escrow holds payment for off-chain agent jobs until an oracle
// reports the result, then pays the provider or refunds the payer.
//
// This is the package most users should import. It re-exports the public
// types from the pkg/ packages and wires them together.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("escrow.db"), &gorm.Config{})
//	store := escrow.NewGormStorage(db)
//	bank := escrow.NewBookBank(db)
//	dir := escrow.NewDirectory(db)
//	// migrate store, bank and dir, then bootstrap settings
//
//	e := escrow.New(store, dir, oracleClient, bank)
//	job, err := e.Ledger.CreateJob(ctx, escrow.CreateJobRequest{...})
//
//	// Oracle callbacks land on e.Resolver; queued transfers are paid by
//	go e.NewWorker().Start(ctx)
package escrow

import (
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/agent-escrow/pkg/admin"
	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/directory"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/oracle"
	"github.com/jdziat/agent-escrow/pkg/resolver"
	"github.com/jdziat/agent-escrow/pkg/schedule"
	"github.com/jdziat/agent-escrow/pkg/settlement"
	"github.com/jdziat/agent-escrow/pkg/storage"
)

type (
	// Job is a commissioned unit of work and the escrow it holds.
	Job = core.Job

	// JobStatus is the lifecycle state of a job.
	JobStatus = core.JobStatus

	// Transfer is the queued release of a job's escrow.
	Transfer = core.Transfer

	// Provider is a registered agent.
	Provider = core.Provider

	// Settings is the owner-gated oracle configuration.
	Settings = core.Settings

	// Amount is a non-negative token amount.
	Amount = core.Amount

	// Event is the interface for all escrow events.
	Event = core.Event

	// TransferSettled is emitted when escrow leaves the system.
	TransferSettled = core.TransferSettled

	// RouterUpdated is emitted when the trusted router changes.
	RouterUpdated = core.RouterUpdated

	// Notification is a persisted event in the outbox.
	Notification = core.Notification

	// EscrowSummary totals the funds the escrow still holds.
	EscrowSummary = core.EscrowSummary

	Storage   = core.Storage
	Directory = core.Directory
	Oracle    = core.Oracle
	Bank      = core.Bank

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// BookBank is a Bank that books balances in the escrow database.
	BookBank = settlement.BookBank

	Ledger           = ledger.Ledger
	CreateJobRequest = ledger.CreateJobRequest
	Resolver         = resolver.Resolver
	Settler          = settlement.Settler
	Worker           = settlement.Worker
	Admin            = admin.Admin
	Defaults         = admin.Defaults
	Simulator        = oracle.Simulator
	Schedule         = schedule.Schedule

	// Option configures the ledger built by New.
	Option = ledger.Option
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusFulfilled = core.StatusFulfilled
	StatusFailed    = core.StatusFailed
)

// Error variables
var (
	ErrProviderNotFound    = core.ErrProviderNotFound
	ErrProviderInactive    = core.ErrProviderInactive
	ErrAmountMismatch      = core.ErrAmountMismatch
	ErrUnknownRequest      = core.ErrUnknownRequest
	ErrAlreadyResolved     = core.ErrAlreadyResolved
	ErrUnauthorizedCaller  = core.ErrUnauthorizedCaller
	ErrDispatchFailed      = core.ErrDispatchFailed
	ErrNotOwner            = core.ErrNotOwner
	ErrNotBootstrapped     = core.ErrNotBootstrapped
	ErrAlreadyBootstrapped = core.ErrAlreadyBootstrapped
	ErrInsufficientFunds   = core.ErrInsufficientFunds
)

// EscrowAccount is the BookBank account that holds collected job prices.
var EscrowAccount = settlement.EscrowAccount

// Escrow is a wired ledger with its callback resolver, settler and admin.
type Escrow struct {
	Ledger   *ledger.Ledger
	Resolver *resolver.Resolver
	Settler  *settlement.Settler
	Admin    *admin.Admin
}

// New wires an escrow over s. Resolved jobs are settled inline through bank;
// anything that fails is left for a worker from NewWorker.
func New(s Storage, dir Directory, o Oracle, bank Bank, opts ...Option) *Escrow {
	l := ledger.New(s, dir, o, bank, opts...)
	settler := settlement.NewSettler(l, bank, settlement.WithLogger(l.Logger()))
	return &Escrow{
		Ledger:   l,
		Resolver: resolver.New(l, resolver.WithSettler(settler)),
		Settler:  settler,
		Admin:    admin.New(l),
	}
}

// NewWorker creates a settlement worker for e.
func (e *Escrow) NewWorker(opts ...settlement.Option) *Worker {
	return settlement.NewWorker(e.Settler, opts...)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewBookBank creates a bank booking balances in db.
func NewBookBank(db *gorm.DB) *BookBank {
	return settlement.NewBookBank(db)
}

// NewDirectory creates a provider directory stored in db.
func NewDirectory(db *gorm.DB) *directory.Gorm {
	return directory.NewGorm(db)
}

// NewAmount returns n as an Amount.
func NewAmount(n int64) Amount {
	return core.NewAmount(n)
}

// ParseAmount parses a base-10 amount.
func ParseAmount(s string) (Amount, error) {
	return core.ParseAmount(s)
}

// Every creates a schedule that fires at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}
