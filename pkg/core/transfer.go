package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferKind distinguishes payouts from refunds.
type TransferKind string

const (
	TransferPayout TransferKind = "payout" // Escrow released to the provider
	TransferRefund TransferKind = "refund" // Escrow returned to the payer
)

// TransferStatus is the settlement state of a transfer.
type TransferStatus string

const (
	TransferPending       TransferStatus = "pending"
	TransferStatusSettled TransferStatus = "settled"
)

// Transfer is the queued release of one job's escrow. A job owns at most one
// transfer, so its escrow is released either to the provider or to the payer.
type Transfer struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	JobID         uint64         `gorm:"uniqueIndex;not null" json:"job_id"`
	RequestHandle string         `gorm:"index;size:66;not null" json:"request_handle"`
	Kind          TransferKind   `gorm:"size:10;not null" json:"kind"`
	Recipient     string         `gorm:"size:42;not null" json:"recipient"`
	Amount        Amount         `gorm:"size:78;not null" json:"amount"`
	Status        TransferStatus `gorm:"index;size:20;default:'pending'" json:"status"`
	Attempts      int            `gorm:"default:0" json:"attempts"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt *time.Time     `gorm:"index" json:"next_attempt_at,omitempty"`
	LockedBy      string         `gorm:"size:255" json:"-"`
	LockedUntil   *time.Time     `gorm:"index" json:"-"`
	SettledAt     *time.Time     `json:"settled_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecipientAddress returns the recipient as an address.
func (t *Transfer) RecipientAddress() common.Address {
	return common.HexToAddress(t.Recipient)
}
