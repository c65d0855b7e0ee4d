package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"idlookup/internal/lookup"
	"idlookup/internal/query/models"
	"idlookup/pkg/platform/sentinel"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists query records in the query_records table.
type PostgresStore struct {
	db DBTX
}

// NewPostgres constructs a PostgreSQL-backed result store.
func NewPostgres(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `id, identifier, caller_id, status, cost, result, error_message,
	client_ip, user_agent, requested_at, completed_at, updated_at`

// sortColumns whitelists ORDER BY targets.
var sortColumns = map[models.SortField]string{
	models.SortByRequestedAt: "requested_at",
	models.SortByStatus:      "status",
	models.SortByIdentifier:  "identifier",
}

func (s *PostgresStore) Create(ctx context.Context, record *models.QueryRecord) error {
	result, err := marshalResult(record.Result)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO query_records (id, identifier, caller_id, status, cost, result, error_message,
			client_ip, user_agent, requested_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.Identifier, record.CallerID, string(record.Status), record.Cost, result,
		record.ErrorMessage, record.ClientIP, record.UserAgent, record.RequestedAt,
		record.CompletedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

// Update writes the record's terminal state. The WHERE clause keeps a
// terminal row from being overwritten by a late writer such as the sweeper.
func (s *PostgresStore) Update(ctx context.Context, record *models.QueryRecord) error {
	result, err := marshalResult(record.Result)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE query_records
		SET status = $2, result = $3, error_message = $4, completed_at = $5, updated_at = $6
		WHERE id = $1 AND status = 'PENDING'`,
		record.ID, string(record.Status), result, record.ErrorMessage, record.CompletedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update query record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM query_records WHERE id = $1)`, record.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check query record: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM query_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find query record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByCaller(ctx context.Context, callerID string, req models.PageRequest) ([]*models.QueryRecord, int64, error) {
	column, ok := sortColumns[req.SortBy]
	if !ok {
		column = sortColumns[models.SortByRequestedAt]
	}
	dir := "DESC"
	if req.SortDir == models.SortAsc {
		dir = "ASC"
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM query_records WHERE caller_id = $1`, callerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query records: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM query_records WHERE caller_id = $1
		ORDER BY %s %s, id %s LIMIT $2 OFFSET $3`, selectColumns, column, dir, dir)
	records, err := s.list(ctx, query, callerID, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, callerID string, limit int) ([]*models.QueryRecord, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM query_records WHERE caller_id = $1
		ORDER BY requested_at DESC, id DESC LIMIT $2`, callerID, limit)
}

func (s *PostgresStore) ListByIdentifier(ctx context.Context, callerID, formatted string) ([]*models.QueryRecord, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM query_records WHERE caller_id = $1 AND identifier = $2
		ORDER BY requested_at DESC, id DESC`, callerID, formatted)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, callerID string) (map[models.Status]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM query_records WHERE caller_id = $1 GROUP BY status`, callerID)
	if err != nil {
		return nil, fmt.Errorf("count query records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, callerID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM query_records WHERE caller_id = $1 AND requested_at >= $2`,
		callerID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count query records since: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.QueryRecord, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM query_records
		WHERE status = 'PENDING' AND requested_at < $1
		ORDER BY requested_at ASC LIMIT $2`, before, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.QueryRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.QueryRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*models.QueryRecord, error) {
	var (
		record models.QueryRecord
		status string
		result []byte
	)
	err := row.Scan(
		&record.ID, &record.Identifier, &record.CallerID, &status, &record.Cost, &result,
		&record.ErrorMessage, &record.ClientIP, &record.UserAgent, &record.RequestedAt,
		&record.CompletedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Status = models.Status(status)
	if len(result) > 0 {
		var res lookup.Result
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("unmarshal query result: %w", err)
		}
		record.Result = &res
	}
	return &record, nil
}

func marshalResult(res *lookup.Result) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal query result: %w", err)
	}
	return b, nil
}
