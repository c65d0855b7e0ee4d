package models

import (
	"time"

	"github.com/google/uuid"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/pkg/platform/sentinel"
)

// Status is the lifecycle position of a QueryRecord.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// QueryRecord is the billing and audit record for one lookup.
// Result is only set when COMPLETED, ErrorMessage only when FAILED.
type QueryRecord struct {
	ID           uuid.UUID      `json:"id"`
	Identifier   string         `json:"identifier"`
	CallerID     string         `json:"caller_id"`
	Status       Status         `json:"status"`
	Cost         int64          `json:"cost"`
	Result       *lookup.Result `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestedAt  time.Time      `json:"requested_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewQueryRecord creates a PENDING record for id.
func NewQueryRecord(id identifier.Identifier, callerID string, cost int64, clientIP, userAgent string, now time.Time) *QueryRecord {
	return &QueryRecord{
		ID:          uuid.New(),
		Identifier:  id.Formatted(),
		CallerID:    callerID,
		Status:      StatusPending,
		Cost:        cost,
		ClientIP:    clientIP,
		UserAgent:   userAgent,
		RequestedAt: now,
		UpdatedAt:   now,
	}
}

// MarkCompleted moves a PENDING record to COMPLETED with res attached.
func (r *QueryRecord) MarkCompleted(res *lookup.Result, now time.Time) error {
	if r.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	r.Status = StatusCompleted
	r.Result = res
	r.ErrorMessage = ""
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkFailed moves a PENDING record to FAILED with msg.
func (r *QueryRecord) MarkFailed(msg string, now time.Time) error {
	if r.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	r.Status = StatusFailed
	r.Result = nil
	r.ErrorMessage = msg
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// Clone returns a deep-enough copy for stores that hand out records.
func (r *QueryRecord) Clone() *QueryRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	return &cp
}

// Stats summarizes a caller's query history.
type Stats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
	Today     int64 `json:"today"`
}

// CallerStatus is the answer to "may this caller query right now".
type CallerStatus struct {
	CanQuery bool  `json:"can_query"`
	Balance  int64 `json:"balance"`
	UnitCost int64 `json:"unit_cost"`
	Active   bool  `json:"active"`
}
