package audit

import (
	"context"
	"time"
)

// Action names a recorded query outcome.
type Action string

const (
	ActionQueryCompleted    Action = "query.completed"
	ActionQueryFailed       Action = "query.failed"
	ActionQueryRefundFailed Action = "query.refund_failed"
	ActionQueryAbandoned    Action = "query.abandoned"
)

// Severity lets sinks route events; refund failures need a human.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var actionSeverity = map[Action]Severity{
	ActionQueryCompleted:    SeverityInfo,
	ActionQueryFailed:       SeverityWarning,
	ActionQueryAbandoned:    SeverityWarning,
	ActionQueryRefundFailed: SeverityCritical,
}

// Severity returns the routing severity, defaulting to info.
func (a Action) Severity() Severity {
	if s, ok := actionSeverity[a]; ok {
		return s
	}
	return SeverityInfo
}

// Event is emitted by the query service for every terminal record. It never
// carries full identifier digits; Identifier is the masked form.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Severity   Severity  `json:"severity"`
	CallerID   string    `json:"caller_id"`
	QueryID    string    `json:"query_id"`
	Identifier string    `json:"identifier"`
	Status     string    `json:"status,omitempty"`
	Fallback   string    `json:"fallback,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Cost       int64     `json:"cost"`
	RequestID  string    `json:"request_id,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
}

// Sink durably accepts events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also read events back per caller.
type Store interface {
	Sink
	ListByCaller(ctx context.Context, callerID string) ([]Event, error)
}
