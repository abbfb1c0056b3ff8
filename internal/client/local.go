package client

import (
	"context"

	"fintrack/internal/core"
)

// TransactionService is the service surface Local adapts.
// *services.TransactionService implements it.
type TransactionService interface {
	ListTransactions(ctx context.Context, sess core.Session, f core.Filter) ([]core.Transaction, error)
	AddTransaction(ctx context.Context, sess core.Session, in core.TransactionInput) (core.Transaction, error)
	EditTransaction(ctx context.Context, sess core.Session, id string, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// Local implements TransactionAPI by calling the services in-process.
type Local struct {
	svc TransactionService
}

func NewLocal(svc TransactionService) *Local {
	return &Local{svc: svc}
}

func (l *Local) List(ctx context.Context, sess core.Session, f core.Filter) ([]core.Transaction, error) {
	return l.svc.ListTransactions(ctx, sess, f)
}

func (l *Local) Add(ctx context.Context, sess core.Session, in core.TransactionInput) (string, error) {
	tx, err := l.svc.AddTransaction(ctx, sess, in)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (l *Local) Edit(ctx context.Context, sess core.Session, id string, in core.TransactionInput) error {
	_, err := l.svc.EditTransaction(ctx, sess, id, in)
	return err
}

func (l *Local) Delete(ctx context.Context, sess core.Session, id string) error {
	if !sess.Authenticated() {
		return core.ErrUnauthenticated
	}
	return l.svc.DeleteTransaction(ctx, id)
}
