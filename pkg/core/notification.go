package core

import (
	"encoding/json"
	"time"
)

// Notification is a persisted event. Notifications are written in the same
// transaction as the state change that produced them, so indexers reading
// the outbox see every transition exactly once.
type Notification struct {
	Seq           uint64    `gorm:"primaryKey;autoIncrement" json:"seq"`
	Kind          string    `gorm:"index;size:64;not null" json:"kind"`
	JobID         *uint64   `gorm:"index" json:"job_id,omitempty"`
	RequestHandle string    `gorm:"index;size:66" json:"request_handle,omitempty"`
	Data          string    `gorm:"type:text" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NewNotification builds the outbox row for an event.
func NewNotification(e Event) (*Notification, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	n := &Notification{Kind: e.Kind(), Data: string(data)}
	switch ev := e.(type) {
	case *JobCreated:
		n.JobID, n.RequestHandle = &ev.JobID, ev.RequestHandle
	case *JobFulfilled:
		n.JobID, n.RequestHandle = &ev.JobID, ev.RequestHandle
	case *JobFailed:
		n.JobID, n.RequestHandle = &ev.JobID, ev.RequestHandle
	case *TransferSettled:
		n.JobID, n.RequestHandle = &ev.JobID, ev.RequestHandle
	}
	return n, nil
}

// Payload returns the event body as raw JSON.
func (n *Notification) Payload() json.RawMessage {
	return json.RawMessage(n.Data)
}
