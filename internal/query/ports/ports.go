// Package ports declares what the query service needs from the rest of the
// system. Implementations live in internal/account/store, internal/query/store,
// internal/lookup/gateway and pkg/platform/audit.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks TokenLedger,UserDirectory,ResultStore,Gateway,AuditPublisher

import (
	"context"
	"time"

	"github.com/google/uuid"

	accountmodels "idlookup/internal/account/models"
	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/internal/query/models"
	"idlookup/pkg/platform/audit"
)

// TokenLedger holds prepaid balances. Debit must be an atomic conditional
// decrement returning sentinel.ErrInsufficientFunds when balance < amount.
type TokenLedger interface {
	Balance(ctx context.Context, callerID string) (int64, error)
	Debit(ctx context.Context, callerID string, amount int64) error
	Credit(ctx context.Context, callerID string, amount int64) error
}

// UserDirectory resolves callers; unknown IDs return sentinel.ErrNotFound.
type UserDirectory interface {
	FindCaller(ctx context.Context, callerID string) (*accountmodels.Caller, error)
}

// ResultStore persists QueryRecord lifecycles. Missing records return
// sentinel.ErrNotFound. Update only applies to a stored PENDING record and
// returns sentinel.ErrInvalidState once the stored record is terminal.
type ResultStore interface {
	Create(ctx context.Context, record *models.QueryRecord) error
	Update(ctx context.Context, record *models.QueryRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error)
	ListByCaller(ctx context.Context, callerID string, req models.PageRequest) ([]*models.QueryRecord, int64, error)
	ListRecent(ctx context.Context, callerID string, limit int) ([]*models.QueryRecord, error)
	ListByIdentifier(ctx context.Context, callerID, formatted string) ([]*models.QueryRecord, error)
	CountByStatus(ctx context.Context, callerID string) (map[models.Status]int64, error)
	CountSince(ctx context.Context, callerID string, since time.Time) (int64, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.QueryRecord, error)
}

// Gateway fetches registry data. Upstream trouble is reported through the
// result's Fallback reason; an error is a programming fault.
type Gateway interface {
	Fetch(ctx context.Context, id identifier.Identifier) (*lookup.Result, error)
}

// AuditPublisher records query outcomes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
