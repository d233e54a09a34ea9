package core

import (
	"context"
	"time"
)

// Storage defines the persistence layer for the escrow.
//
// Every mutating method is a single transaction: state change, reverse index,
// settlement transfer and outbox notification commit together or not at all.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	CreateJob(ctx context.Context, job *Job) (*JobCreated, error)
	ResolveJob(ctx context.Context, res Resolution, transfer *Transfer, event Event) (*Job, error)

	// Queries
	GetJob(ctx context.Context, requestHandle string) (*Job, error)
	GetJobByID(ctx context.Context, jobID uint64) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, int64, error)
	NextJobID(ctx context.Context) (uint64, error)
	GetPendingJobsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error)

	// Settlement
	GetTransfer(ctx context.Context, transferID string) (*Transfer, error)
	GetTransferByJob(ctx context.Context, jobID uint64) (*Transfer, error)
	GetDueTransfers(ctx context.Context, limit int) ([]*Transfer, error)
	ClaimTransfer(ctx context.Context, transferID, settlerID string, lease time.Duration) (*Transfer, error)
	MarkTransferSettled(ctx context.Context, transferID, settlerID string) (*TransferSettled, error)
	MarkTransferFailed(ctx context.Context, transferID, settlerID, errMsg string, nextAttempt time.Time) error
	ReleaseStaleTransferLocks(ctx context.Context) (int64, error)

	// Admin config
	GetSettings(ctx context.Context) (*Settings, error)
	InitSettings(ctx context.Context, settings *Settings) error
	UpdateSettings(ctx context.Context, fn func(*Settings) (Event, error)) (*Settings, Event, error)

	// Request authentication
	ConsumeNonce(ctx context.Context, signer, nonce string, seenAt, pruneBefore time.Time) error

	// Outbox
	ListNotifications(ctx context.Context, afterSeq uint64, limit int) ([]*Notification, error)

	// Reporting
	EscrowSummary(ctx context.Context) (*EscrowSummary, error)
}

// EscrowSummary reports funds currently held by the escrow.
type EscrowSummary struct {
	PendingJobs      int64  `json:"pending_jobs"`
	HeldForPending   Amount `json:"held_for_pending"`
	PendingTransfers int64  `json:"pending_transfers"`
	OwedByTransfers  Amount `json:"owed_by_transfers"`
}

// RequestNonce records a nonce a signer has spent on the HTTP API. Rows older
// than the signature window are pruned as new nonces arrive.
type RequestNonce struct {
	Signer string    `gorm:"primaryKey;size:42"`
	Nonce  string    `gorm:"primaryKey;size:64"`
	SeenAt time.Time `gorm:"index;not null"`
}
