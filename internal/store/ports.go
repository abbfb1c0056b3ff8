// Package store declares the persistence ports used by the services.
// Implementations live in store/memory, storage (SQLite) and storage/postgres.
package store

import (
	"context"
	"sort"
	"time"

	"fintrack/internal/core"
)

// Query selects one user's transactions.
type Query struct {
	UserID string
	// Since is the inclusive lower bound on the transaction date; zero means unbounded.
	Since time.Time
	// Type restricts to one direction; empty means both.
	Type core.Type
}

// NewQuery builds the store query for a filter evaluated at now.
func NewQuery(userID string, f core.Filter, now time.Time) Query {
	q := Query{UserID: userID}
	if since, ok := f.Frequency.Since(now); ok {
		q.Since = since
	}
	if only, ok := f.Type.Only(); ok {
		q.Type = only
	}
	return q
}

// Matches reports whether tx satisfies q.
func (q Query) Matches(tx core.Transaction) bool {
	if tx.UserID != q.UserID {
		return false
	}
	if q.Type != "" && tx.Type != q.Type {
		return false
	}
	if !q.Since.IsZero() && tx.Date.Before(q.Since) {
		return false
	}
	return true
}

// SinceUnix returns the lower bound in whole seconds, rounded up so that SQL
// comparisons on unix-second columns agree with Matches.
func (q Query) SinceUnix() int64 {
	secs := q.Since.Unix()
	if q.Since.Nanosecond() > 0 {
		secs++
	}
	return secs
}

// FirstDay returns the earliest calendar date at or after Since, for stores
// that compare on a DATE column.
func (q Query) FirstDay() core.Date {
	d := core.DateOf(q.Since)
	if d.Before(q.Since) {
		d = core.DateOf(d.AddDate(0, 0, 1))
	}
	return d
}

// Ports for outbound adapters.
type (
	// TransactionStore persists transactions. Lookups by id return
	// core.ErrNotFound when the record does not exist.
	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) error
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		// ListTransactions returns matches ordered by date then creation time, newest first.
		ListTransactions(ctx context.Context, q Query) ([]core.Transaction, error)
	}

	// UserStore persists accounts. CreateUser returns core.ErrEmailTaken on a duplicate email.
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
	}

	// AuditLog stores transaction change events. Recording the same event id twice is a no-op.
	AuditLog interface {
		RecordEvent(ctx context.Context, e core.AuditEvent) error
		ListEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error)
	}

	// Store is the full persistence surface a backend provides.
	Store interface {
		TransactionStore
		UserStore
		AuditLog
		Ping(ctx context.Context) error
		Close() error
	}
)

// SortNewestFirst orders txs by date, then creation time, both descending.
func SortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.After(txs[j].Date.Time)
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
