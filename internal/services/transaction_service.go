package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// DefaultStoreTimeout bounds every store call unless overridden.
const DefaultStoreTimeout = 5 * time.Second

// EventPublisher announces committed mutations. *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, kind core.EventKind, tx core.Transaction) error
}

// TransactionService queries and mutates transactions on behalf of a session.
type TransactionService struct {
	store     store.TransactionStore
	audit     store.AuditLog
	publisher EventPublisher
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	lists     singleflight.Group
	// writes maps a user id to a counter bumped after every committed mutation.
	writes sync.Map
}

type Option func(*TransactionService)

// WithPublisher enables change events. A nil publisher disables them.
func WithPublisher(p EventPublisher) Option {
	return func(s *TransactionService) { s.publisher = p }
}

// WithStoreTimeout sets the per-call store deadline; non-positive values keep the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *TransactionService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now, which anchors frequency windows and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *TransactionService) { s.newID = gen }
}

// NewTransactionService builds the service over st. When st also keeps the
// audit trail, History reads from it.
func NewTransactionService(st store.TransactionStore, opts ...Option) *TransactionService {
	s := &TransactionService{
		store:   st,
		timeout: DefaultStoreTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if a, ok := st.(store.AuditLog); ok {
		s.audit = a
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTransactions returns the session user's transactions matching f, newest first.
// Identical concurrent requests share one store call, but never one that
// started before the user's latest committed mutation.
func (s *TransactionService) ListTransactions(ctx context.Context, sess core.Session, f core.Filter) ([]core.Transaction, error) {
	if !sess.Authenticated() {
		return nil, core.ErrUnauthenticated
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	q := store.NewQuery(sess.UserID, f, s.now())
	key := sess.UserID + "|" + strconv.FormatUint(s.writeSeq(sess.UserID).Load(), 10) + "|" + f.Key()

	// The shared call must not die with whichever caller started it.
	ch := s.lists.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.store.ListTransactions(callCtx, q)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, classifyStoreError(ctx, "list transactions", res.Err)
		}
		shared := res.Val.([]core.Transaction)
		out := make([]core.Transaction, len(shared))
		copy(out, shared)
		slog.DebugContext(ctx, "Listed transactions",
			"user_id", sess.UserID,
			"frequency", f.Frequency.String(),
			"type", string(f.Type),
			"count", len(out),
			"shared", res.Shared)
		return out, nil
	}
}

// AddTransaction validates in and stores it as a new transaction owned by the session user.
func (s *TransactionService) AddTransaction(ctx context.Context, sess core.Session, in core.TransactionInput) (core.Transaction, error) {
	if !sess.Authenticated() {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if in.UserID != "" && in.UserID != sess.UserID {
		slog.WarnContext(ctx, "Ignoring client supplied owner on create",
			"session_user", sess.UserID, "payload_user", in.UserID)
	}

	now := s.now().UTC()
	tx := in.Apply(core.Transaction{
		ID:        s.newID(),
		UserID:    sess.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	})

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.CreateTransaction(callCtx, tx); err != nil {
		return core.Transaction{}, classifyStoreError(ctx, "create transaction", err)
	}
	s.committed(tx.UserID)

	slog.InfoContext(ctx, "Transaction created",
		"id", tx.ID, "user_id", tx.UserID, "type", tx.Type, "category", tx.Category)
	s.publish(ctx, core.EventCreated, tx)
	return tx, nil
}

// EditTransaction replaces the editable fields of an existing transaction.
// The owner never changes, whatever the payload says.
func (s *TransactionService) EditTransaction(ctx context.Context, sess core.Session, id string, in core.TransactionInput) (core.Transaction, error) {
	if !sess.Authenticated() {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Transaction{}, &core.ValidationError{Field: "transactionId", Reason: "is required"}
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.store.GetTransaction(callCtx, id)
	if err != nil {
		return core.Transaction{}, classifyStoreError(ctx, "get transaction", err)
	}
	if in.UserID != "" && in.UserID != existing.UserID {
		slog.WarnContext(ctx, "Ignoring owner change on edit",
			"id", id, "owner", existing.UserID, "payload_user", in.UserID)
	}

	updated := in.Apply(existing)
	updated.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTransaction(callCtx, updated); err != nil {
		return core.Transaction{}, classifyStoreError(ctx, "update transaction", err)
	}
	s.committed(updated.UserID)

	slog.InfoContext(ctx, "Transaction updated", "id", id, "user_id", updated.UserID)
	s.publish(ctx, core.EventUpdated, updated)
	return updated, nil
}

// DeleteTransaction permanently removes a transaction. A missing id is core.ErrNotFound.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &core.ValidationError{Field: "transactionId", Reason: "is required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.store.GetTransaction(callCtx, id)
	if err != nil {
		return classifyStoreError(ctx, "get transaction", err)
	}
	if err := s.store.DeleteTransaction(callCtx, id); err != nil {
		return classifyStoreError(ctx, "delete transaction", err)
	}
	s.committed(existing.UserID)

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", existing.UserID)
	s.publish(ctx, core.EventDeleted, existing)
	return nil
}

// History returns the recorded change events of one of the session user's
// transactions, oldest first. Events land asynchronously through the audit
// worker, so a fresh mutation may not be listed yet.
func (s *TransactionService) History(ctx context.Context, sess core.Session, id string) ([]core.AuditEvent, error) {
	if !sess.Authenticated() {
		return nil, core.ErrUnauthenticated
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &core.ValidationError{Field: "transactionId", Reason: "is required"}
	}
	if s.audit == nil {
		return []core.AuditEvent{}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	events, err := s.audit.ListEvents(callCtx, id)
	if err != nil {
		return nil, classifyStoreError(ctx, "list events", err)
	}

	own := make([]core.AuditEvent, 0, len(events))
	for _, e := range events {
		if e.UserID == sess.UserID {
			own = append(own, e)
		}
	}
	return own, nil
}

func (s *TransactionService) writeSeq(userID string) *atomic.Uint64 {
	v, _ := s.writes.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// committed moves later lists for userID onto a fresh shared call.
func (s *TransactionService) committed(userID string) {
	s.writeSeq(userID).Add(1)
}

func (s *TransactionService) publish(ctx context.Context, kind core.EventKind, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, kind, tx); err != nil {
		// The mutation is committed; a lost event only affects the audit trail.
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"kind", kind, "id", tx.ID, "error", err)
	}
}

// classifyStoreError keeps not-found and validation errors, reports caller
// cancellation as is, and turns everything else into core.ErrStoreUnavailable.
func classifyStoreError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrEmailTaken), core.IsValidation(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	slog.ErrorContext(ctx, "Store call failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}
