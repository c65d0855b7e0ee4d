// Package store implements the token ledger and caller directory.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idlookup/internal/account/models"
	"idlookup/pkg/platform/sentinel"
)

// InMemoryStore guards balances with one mutex so check-and-decrement is atomic.
type InMemoryStore struct {
	mu       sync.Mutex
	callers  map[string]models.Caller
	balances map[string]int64
	entries  map[string][]models.LedgerEntry
	clock    func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		callers:  make(map[string]models.Caller),
		balances: make(map[string]int64),
		entries:  make(map[string][]models.LedgerEntry),
		clock:    time.Now,
	}
}

func (s *InMemoryStore) FindCaller(_ context.Context, callerID string) (*models.Caller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.callers[callerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) CreateCaller(_ context.Context, caller *models.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.callers[caller.ID]; ok {
		return sentinel.ErrConflict
	}
	s.callers[caller.ID] = *caller
	s.balances[caller.ID] = 0
	return nil
}

func (s *InMemoryStore) Balance(_ context.Context, callerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[callerID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return balance, nil
}

func (s *InMemoryStore) Debit(_ context.Context, callerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[callerID]
	if !ok || balance < amount {
		return sentinel.ErrInsufficientFunds
	}
	s.apply(callerID, -amount, models.ReasonQueryCharge)
	return nil
}

func (s *InMemoryStore) Credit(_ context.Context, callerID string, amount int64) error {
	return s.add(callerID, amount, models.ReasonQueryRefund)
}

func (s *InMemoryStore) TopUp(_ context.Context, callerID string, amount int64) error {
	return s.add(callerID, amount, models.ReasonTopUp)
}

func (s *InMemoryStore) Entries(_ context.Context, callerID string, limit int) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[callerID]
	out := make([]models.LedgerEntry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *InMemoryStore) add(callerID string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("%s amount must be positive, got %d", reason, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[callerID]; !ok {
		return sentinel.ErrNotFound
	}
	s.apply(callerID, amount, reason)
	return nil
}

// apply must be called with s.mu held.
func (s *InMemoryStore) apply(callerID string, delta int64, reason string) {
	s.balances[callerID] += delta
	s.entries[callerID] = append(s.entries[callerID], models.LedgerEntry{
		CallerID:  callerID,
		Delta:     delta,
		Reason:    reason,
		Balance:   s.balances[callerID],
		CreatedAt: s.clock(),
	})
}
