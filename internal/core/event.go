package core

import "time"

// EventKind names the mutation an AuditEvent records.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// AuditEvent is one entry of the transaction audit trail.
type AuditEvent struct {
	ID            string    `json:"eventId"`
	Kind          EventKind `json:"kind"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}
