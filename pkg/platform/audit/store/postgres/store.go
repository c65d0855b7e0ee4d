// Package postgres persists audit events to the audit_events table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "idlookup/pkg/platform/audit"
)

const selectColumns = `
	timestamp, action, severity, caller_id, query_id, identifier,
	status, fallback, reason, cost, request_id, client_ip`

// Store implements audit.Store on database/sql.
type Store struct {
	db    *sql.DB
	newID func() uuid.UUID
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db, newID: uuid.New}
}

// Append inserts one event. Events arrive with Timestamp and Severity already
// stamped by the publisher.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	severity := event.Severity
	if severity == "" {
		severity = event.Action.Severity()
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, action, severity, caller_id, query_id, identifier,
			status, fallback, reason, cost, request_id, client_ip
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		s.newID(),
		ts,
		string(event.Action),
		string(severity),
		event.CallerID,
		event.QueryID,
		event.Identifier,
		event.Status,
		event.Fallback,
		event.Reason,
		event.Cost,
		event.RequestID,
		event.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCaller returns a caller's events, newest first.
func (s *Store) ListByCaller(ctx context.Context, callerID string) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + `
		FROM audit_events
		WHERE caller_id = $1
		ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, callerID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events across callers.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + `
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			action   string
			severity string
		)
		err := rows.Scan(
			&event.Timestamp,
			&action,
			&severity,
			&event.CallerID,
			&event.QueryID,
			&event.Identifier,
			&event.Status,
			&event.Fallback,
			&event.Reason,
			&event.Cost,
			&event.RequestID,
			&event.ClientIP,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		event.Severity = audit.Severity(severity)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
