package core

import "time"

// Event is the interface for all escrow notifications.
type Event interface {
	eventMarker()
	// Kind returns the notification kind stored in the outbox.
	Kind() string
}

// Notification kinds.
const (
	KindJobCreated          = "job.created"
	KindJobFulfilled        = "job.fulfilled"
	KindJobFailed           = "job.failed"
	KindRouterUpdated       = "router.updated"
	KindSubscriptionUpdated = "subscription.updated"
	KindGasLimitUpdated     = "gas_limit.updated"
	KindNetworkUpdated      = "network.updated"
	KindOwnerUpdated        = "owner.updated"
	KindTransferSettled     = "transfer.settled"
)

// JobCreated is emitted when a job is recorded and its request dispatched.
type JobCreated struct {
	JobID         uint64    `json:"job_id"`
	ProviderID    uint64    `json:"provider_id"`
	Payer         string    `json:"payer"`
	Amount        Amount    `json:"amount"`
	Input         []byte    `json:"input"`
	RequestHandle string    `json:"request_handle"`
	Timestamp     time.Time `json:"timestamp"`
}

func (*JobCreated) eventMarker() {}
func (*JobCreated) Kind() string { return KindJobCreated }

// JobFulfilled is emitted when the oracle output is accepted.
type JobFulfilled struct {
	JobID         uint64    `json:"job_id"`
	Output        string    `json:"output"`
	RequestHandle string    `json:"request_handle"`
	Timestamp     time.Time `json:"timestamp"`
}

func (*JobFulfilled) eventMarker() {}
func (*JobFulfilled) Kind() string { return KindJobFulfilled }

// JobFailed is emitted when a job fails and its escrow is queued for refund.
type JobFailed struct {
	JobID         uint64    `json:"job_id"`
	Reason        string    `json:"reason"`
	RequestHandle string    `json:"request_handle"`
	Timestamp     time.Time `json:"timestamp"`
}

func (*JobFailed) eventMarker() {}
func (*JobFailed) Kind() string { return KindJobFailed }

// RouterUpdated is emitted when the trusted router changes.
type RouterUpdated struct {
	Old       string    `json:"old"`
	New       string    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (*RouterUpdated) eventMarker() {}
func (*RouterUpdated) Kind() string { return KindRouterUpdated }

// SubscriptionUpdated is emitted when the subscription id changes.
type SubscriptionUpdated struct {
	Old       uint64    `json:"old"`
	New       uint64    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (*SubscriptionUpdated) eventMarker() {}
func (*SubscriptionUpdated) Kind() string { return KindSubscriptionUpdated }

// GasLimitUpdated is emitted when the callback gas limit changes.
type GasLimitUpdated struct {
	Old       uint32    `json:"old"`
	New       uint32    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (*GasLimitUpdated) eventMarker() {}
func (*GasLimitUpdated) Kind() string { return KindGasLimitUpdated }

// NetworkUpdated is emitted when the oracle network id changes.
type NetworkUpdated struct {
	Old       string    `json:"old"`
	New       string    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (*NetworkUpdated) eventMarker() {}
func (*NetworkUpdated) Kind() string { return KindNetworkUpdated }

// OwnerUpdated is emitted when ownership is transferred.
type OwnerUpdated struct {
	Old       string    `json:"old"`
	New       string    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (*OwnerUpdated) eventMarker() {}
func (*OwnerUpdated) Kind() string { return KindOwnerUpdated }

// TransferSettled is emitted when escrow leaves the system.
type TransferSettled struct {
	TransferID    string       `json:"transfer_id"`
	JobID         uint64       `json:"job_id"`
	TransferKind  TransferKind `json:"kind"`
	Recipient     string       `json:"recipient"`
	Amount        Amount       `json:"amount"`
	RequestHandle string       `json:"request_handle"`
	Timestamp     time.Time    `json:"timestamp"`
}

func (*TransferSettled) eventMarker() {}
func (*TransferSettled) Kind() string { return KindTransferSettled }
