package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/store"
)

// ErrPrivateBackend rejects backends whose data no other process can read.
var ErrPrivateBackend = errors.New("audit events need a shared backend")

// CheckBackend reports whether the worker can record into backends of type t.
// The memory backend lives inside the worker process, so the API server
// would never see what it records.
func CheckBackend(t backend.BackendType) error {
	if t == backend.MemoryBackend {
		return fmt.Errorf("%w: %s is private to this process, use sqlite or postgres", ErrPrivateBackend, t)
	}
	return nil
}

// EventSource delivers transaction events until ctx is done. *amqp.Client implements it.
type EventSource interface {
	ConsumeTransactionEvents(ctx context.Context, handler func(context.Context, *amqp.TransactionEvent) error) error
}

// AuditWorker appends consumed transaction events to the audit log.
type AuditWorker struct {
	audit   store.AuditLog
	timeout time.Duration

	processed atomic.Int64
	failed    atomic.Int64
}

func NewAuditWorker(audit store.AuditLog, timeout time.Duration) *AuditWorker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditWorker{audit: audit, timeout: timeout}
}

// HandleEvent records one event. A returned error makes the broker redeliver it.
func (w *AuditWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"event_id", msg.EventID,
		"kind", msg.Kind,
		"transaction_id", msg.TransactionID)

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.audit.RecordEvent(callCtx, msg.AuditEvent()); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("record audit event: %w", err)
	}
	w.processed.Add(1)
	return nil
}

// Run consumes from src until ctx is cancelled or the source fails for good.
func (w *AuditWorker) Run(ctx context.Context, src EventSource) error {
	err := src.ConsumeTransactionEvents(ctx, w.HandleEvent)
	slog.InfoContext(ctx, "Audit worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load())
	return err
}

// Counts returns how many events were recorded and how many failed.
func (w *AuditWorker) Counts() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}
