package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"   // Request dispatched, waiting for the oracle
	StatusFulfilled JobStatus = "fulfilled" // Output accepted, provider paid
	StatusFailed    JobStatus = "failed"    // Oracle error or undecodable output, payer refunded
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusFailed
}

// Job is a commissioned unit of off-chain work and the escrow it holds.
// Jobs are keyed by the oracle request handle and never deleted.
type Job struct {
	RequestHandle  string     `gorm:"primaryKey;size:66" json:"request_handle"`
	JobID          uint64     `gorm:"uniqueIndex;not null" json:"job_id"`
	ProviderID     uint64     `gorm:"index;not null" json:"provider_id"`
	Payer          string     `gorm:"index;size:42;not null" json:"payer"`
	EscrowedAmount Amount     `gorm:"size:78;not null" json:"escrowed_amount"`
	Input          []byte     `gorm:"type:bytes" json:"input"`
	Output         string     `gorm:"type:text" json:"output"`
	Status         JobStatus  `gorm:"index;size:20;default:'pending'" json:"status"`
	FailureReason  string     `gorm:"type:text" json:"failure_reason,omitempty"`
	RawResponse    []byte     `gorm:"type:bytes" json:"raw_response,omitempty"`
	RawError       []byte     `gorm:"type:bytes" json:"raw_error,omitempty"`
	CreatedAt      time.Time  `gorm:"index;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// PayerAddress returns the payer as an address.
func (j *Job) PayerAddress() common.Address {
	return common.HexToAddress(j.Payer)
}

// RequestIndex maps a job id back to its request handle.
type RequestIndex struct {
	JobID         uint64    `gorm:"primaryKey;autoIncrement:false"`
	RequestHandle string    `gorm:"uniqueIndex;size:66;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// Sequence is a named monotonically increasing counter.
type Sequence struct {
	Name string `gorm:"primaryKey;size:64"`
	Next uint64 `gorm:"not null;default:0"`
}

// JobSequence names the counter that allocates job ids.
const JobSequence = "jobs"

// Resolution is the terminal decision recorded for a job.
type Resolution struct {
	RequestHandle string
	Status        JobStatus
	Output        string
	FailureReason string
	RawResponse   []byte
	RawError      []byte
	ResolvedAt    time.Time
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status     JobStatus
	Payer      string
	ProviderID *uint64
	Limit      int
	Offset     int
}
