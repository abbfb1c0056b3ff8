package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// TransactionEvent announces a committed transaction mutation.
// It carries identifiers only; consumers needing the record read it from the store.
type TransactionEvent struct {
	EventID       string         `json:"eventId"`
	Kind          core.EventKind `json:"kind"`
	TransactionID string         `json:"transactionId"`
	UserID        string         `json:"userId"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewTransactionEvent creates an event with a fresh id stamped now.
func NewTransactionEvent(kind core.EventKind, transactionID, userID string) *TransactionEvent {
	return &TransactionEvent{
		EventID:       uuid.NewString(),
		Kind:          kind,
		TransactionID: transactionID,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
	}
}

// Validate rejects events the worker cannot record.
func (m *TransactionEvent) Validate() error {
	switch {
	case m.EventID == "":
		return errors.New("event id is required")
	case !m.Kind.Valid():
		return errors.New("unknown event kind " + string(m.Kind))
	case m.TransactionID == "":
		return errors.New("transaction id is required")
	}
	return nil
}

// AuditEvent converts the message into the stored audit record.
func (m *TransactionEvent) AuditEvent() core.AuditEvent {
	return core.AuditEvent{
		ID:            m.EventID,
		Kind:          m.Kind,
		TransactionID: m.TransactionID,
		UserID:        m.UserID,
		OccurredAt:    m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
