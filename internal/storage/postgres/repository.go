// Package postgres implements store.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Repository)(nil)

// NewRepository migrates the database at url and opens a connection pool.
func NewRepository(ctx context.Context, url string) (*Repository, error) {
	if err := RunMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const transactionColumns = `id, user_id, amount::text, type, category, date, description, created_at, updated_at`

func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, category, date, description, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.UserID, tx.Amount.String(), string(tx.Type), string(tx.Category),
		tx.Date.Time, tx.Description, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	slog.DebugContext(ctx, "Transaction saved to Postgres", "id", tx.ID, "user_id", tx.UserID)
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		   SET amount = $1::numeric, type = $2, category = $3, date = $4, description = $5, updated_at = $6
		 WHERE id = $7`,
		tx.Amount.String(), string(tx.Type), string(tx.Category), tx.Date.Time,
		tx.Description, tx.UpdatedAt, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, q store.Query) ([]core.Transaction, error) {
	where := []string{"user_id = $1"}
	args := []any{q.UserID}
	if !q.Since.IsZero() {
		args = append(args, q.FirstDay().Time)
		where = append(where, "date >= $"+strconv.Itoa(len(args)))
	}
	if q.Type != "" {
		args = append(args, string(q.Type))
		where = append(where, "type = $"+strconv.Itoa(len(args)))
	}

	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE `+
		strings.Join(where, " AND ")+` ORDER BY date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, core.NormalizeEmail(u.Email), u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `email = $1`, core.NormalizeEmail(email))
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *Repository) getUser(ctx context.Context, cond string, arg any) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *Repository) RecordEvent(ctx context.Context, e core.AuditEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transaction_events (id, kind, transaction_id, user_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Kind), e.TransactionID, e.UserID, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("record event %s: %w", e.ID, err)
	}
	return nil
}

func (r *Repository) ListEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, transaction_id, user_id, occurred_at
		  FROM transaction_events WHERE transaction_id = $1 ORDER BY occurred_at, recorded_at`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEvent
	for rows.Next() {
		var (
			e    core.AuditEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.TransactionID, &e.UserID, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = core.EventKind(kind)
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx       core.Transaction
		amount   string
		typ, cat string
		date     time.Time
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &amount, &typ, &cat, &date, &tx.Description, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Amount = d
	tx.Type = core.Type(typ)
	tx.Category = core.Category(cat)
	tx.Date = core.DateOf(date)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}
