package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; serialize on a single connection instead of retrying SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const transactionColumns = `id, user_id, amount, type, category, date, description, created_at, updated_at`

// CreateTransaction implements store.TransactionStore
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Amount.String(), string(tx.Type), string(tx.Category),
		tx.Date.Unix(), tx.Description, tx.CreatedAt.UnixNano(), tx.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"category", tx.Category,
		"date", tx.Date.String())
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// UpdateTransaction replaces the editable fields; user_id and created_at are never written.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		    SET amount = ?, type = ?, category = ?, date = ?, description = ?, updated_at = ?
		  WHERE id = ?`,
		tx.Amount.String(), string(tx.Type), string(tx.Category), tx.Date.Unix(),
		tx.Description, tx.UpdatedAt.UnixNano(), tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, q store.Query) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{q.UserID}
	)
	if !q.Since.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, q.SinceUnix())
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
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

// CreateUser implements store.UserStore
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, core.NormalizeEmail(u.Email), u.PasswordHash, u.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID)
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `email = ?`, core.NormalizeEmail(email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, cond string, arg any) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

// RecordEvent implements store.AuditLog
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e core.AuditEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO transaction_events (id, kind, transaction_id, user_id, occurred_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.TransactionID, e.UserID, e.OccurredAt.UnixNano(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("record event %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, transaction_id, user_id, occurred_at
		   FROM transaction_events WHERE transaction_id = ? ORDER BY occurred_at, recorded_at`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEvent
	for rows.Next() {
		var (
			e        core.AuditEvent
			kind     string
			occurred int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.TransactionID, &e.UserID, &occurred); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = core.EventKind(kind)
		e.OccurredAt = time.Unix(0, occurred).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		tx                      core.Transaction
		typ, cat                string
		date, created, modified int64
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &tx.Amount, &typ, &cat, &date, &tx.Description, &created, &modified); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.Type(typ)
	tx.Category = core.Category(cat)
	tx.Date = core.DateOf(time.Unix(date, 0))
	tx.CreatedAt = time.Unix(0, created).UTC()
	tx.UpdatedAt = time.Unix(0, modified).UTC()
	return tx, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
