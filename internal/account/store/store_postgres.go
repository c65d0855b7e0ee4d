package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"idlookup/internal/account/models"
	"idlookup/pkg/platform/sentinel"
)

const uniqueViolation = pq.ErrorCode("23505")

// PostgresStore is the token ledger and caller directory on PostgreSQL.
// Balance changes and their ledger entries commit in one transaction.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) FindCaller(ctx context.Context, callerID string) (*models.Caller, error) {
	var c models.Caller
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, active, created_at FROM callers WHERE id = $1`, callerID,
	).Scan(&c.ID, &c.DisplayName, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find caller: %w", err)
	}
	return &c, nil
}

// CreateCaller inserts the caller with a zero balance.
func (s *PostgresStore) CreateCaller(ctx context.Context, caller *models.Caller) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create caller: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO callers (id, display_name, active, created_at) VALUES ($1, $2, $3, $4)`,
		caller.ID, caller.DisplayName, caller.Active, caller.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert caller: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO token_balances (caller_id, balance, updated_at) VALUES ($1, 0, $2)`,
		caller.ID, caller.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create caller: %w", err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, callerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM token_balances WHERE caller_id = $1`, callerID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Debit is a conditional decrement: the row only changes when the balance
// covers amount, so concurrent debits can never overdraw.
func (s *PostgresStore) Debit(ctx context.Context, callerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return s.move(ctx, callerID, -amount, models.ReasonQueryCharge,
		`UPDATE token_balances SET balance = balance - $2, updated_at = $3
		 WHERE caller_id = $1 AND balance >= $2 RETURNING balance`, amount)
}

func (s *PostgresStore) Credit(ctx context.Context, callerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return s.move(ctx, callerID, amount, models.ReasonQueryRefund,
		`UPDATE token_balances SET balance = balance + $2, updated_at = $3
		 WHERE caller_id = $1 RETURNING balance`, amount)
}

// TopUp adds purchased tokens.
func (s *PostgresStore) TopUp(ctx context.Context, callerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("top-up amount must be positive, got %d", amount)
	}
	return s.move(ctx, callerID, amount, models.ReasonTopUp,
		`UPDATE token_balances SET balance = balance + $2, updated_at = $3
		 WHERE caller_id = $1 RETURNING balance`, amount)
}

func (s *PostgresStore) move(ctx context.Context, callerID string, delta int64, reason, update string, amount int64) error {
	now := s.clock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", reason, err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	if err := tx.QueryRowContext(ctx, update, callerID, amount, now).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if delta < 0 {
				return sentinel.ErrInsufficientFunds
			}
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("update balance for %s: %w", reason, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (caller_id, delta, reason, balance, created_at) VALUES ($1, $2, $3, $4, $5)`,
		callerID, delta, reason, balance, now,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", reason, err)
	}
	return nil
}

// Entries returns the caller's newest ledger movements first.
func (s *PostgresStore) Entries(ctx context.Context, callerID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT caller_id, delta, reason, balance, created_at FROM ledger_entries
		 WHERE caller_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, callerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.CallerID, &e.Delta, &e.Reason, &e.Balance, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
