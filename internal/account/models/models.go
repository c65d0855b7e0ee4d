package models

import "time"

// Caller is an account allowed to spend tokens on lookups.
type Caller struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// LedgerEntry is one movement on a caller's token balance.
type LedgerEntry struct {
	CallerID  string    `json:"caller_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ReasonQueryCharge = "query_charge"
	ReasonQueryRefund = "query_refund"
	ReasonTopUp       = "top_up"
)
