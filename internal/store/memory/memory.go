// Package memory is an in-process store.Store used by default and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

type Store struct {
	mu      sync.Mutex
	txs     map[string]core.Transaction
	users   map[string]core.User
	byEmail map[string]string
	events  []core.AuditEvent
	seen    map[string]struct{}
	closed  bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		txs:     make(map[string]core.Transaction),
		users:   make(map[string]core.User),
		byEmail: make(map[string]string),
		seen:    make(map[string]struct{}),
	}
}

func (s *Store) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	s.txs[tx.ID] = tx
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.txs[tx.ID]
	if !ok {
		return core.ErrNotFound
	}
	tx.UserID = prev.UserID
	tx.CreatedAt = prev.CreatedAt
	s.txs[tx.ID] = tx
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, q store.Query) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if q.Matches(tx) {
			out = append(out, tx)
		}
	}
	s.mu.Unlock()
	store.SortNewestFirst(out)
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := core.NormalizeEmail(u.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return core.ErrEmailTaken
	}
	u.Email = email
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[core.NormalizeEmail(email)]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) RecordEvent(ctx context.Context, e core.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[e.ID]; dup {
		return nil
	}
	s.seen[e.ID] = struct{}{}
	s.events = append(s.events, e)
	return nil
}

// ListEvents returns the events of one transaction in arrival order.
func (s *Store) ListEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuditEvent
	for _, e := range s.events {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
