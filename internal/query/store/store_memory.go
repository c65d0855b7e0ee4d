package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"idlookup/internal/query/models"
	"idlookup/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map. Records are cloned on the way in and
// out so callers never share state with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.QueryRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[uuid.UUID]*models.QueryRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, record *models.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) ListByCaller(_ context.Context, callerID string, req models.PageRequest) ([]*models.QueryRecord, int64, error) {
	matched := s.filter(func(r *models.QueryRecord) bool { return r.CallerID == callerID })
	slices.SortStableFunc(matched, comparator(req.SortBy, req.SortDir))

	total := int64(len(matched))
	start := min(req.Offset(), len(matched))
	end := min(start+req.Size, len(matched))
	return matched[start:end], total, nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, callerID string, limit int) ([]*models.QueryRecord, error) {
	matched := s.filter(func(r *models.QueryRecord) bool { return r.CallerID == callerID })
	slices.SortStableFunc(matched, comparator(models.SortByRequestedAt, models.SortDesc))
	return matched[:min(limit, len(matched))], nil
}

func (s *InMemoryStore) ListByIdentifier(_ context.Context, callerID, formatted string) ([]*models.QueryRecord, error) {
	matched := s.filter(func(r *models.QueryRecord) bool {
		return r.CallerID == callerID && r.Identifier == formatted
	})
	slices.SortStableFunc(matched, comparator(models.SortByRequestedAt, models.SortDesc))
	return matched, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context, callerID string) (map[models.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int64)
	for _, r := range s.records {
		if r.CallerID == callerID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) CountSince(_ context.Context, callerID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.records {
		if r.CallerID == callerID && !r.RequestedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListStalePending(_ context.Context, before time.Time, limit int) ([]*models.QueryRecord, error) {
	matched := s.filter(func(r *models.QueryRecord) bool {
		return r.Status == models.StatusPending && r.RequestedAt.Before(before)
	})
	slices.SortStableFunc(matched, comparator(models.SortByRequestedAt, models.SortAsc))
	return matched[:min(limit, len(matched))], nil
}

func (s *InMemoryStore) filter(keep func(*models.QueryRecord) bool) []*models.QueryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.QueryRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// comparator orders by the requested field and breaks ties by ID so pages
// are stable.
func comparator(field models.SortField, dir models.SortDir) func(a, b *models.QueryRecord) int {
	return func(a, b *models.QueryRecord) int {
		var c int
		switch field {
		case models.SortByStatus:
			c = cmp.Compare(a.Status, b.Status)
		case models.SortByIdentifier:
			c = cmp.Compare(a.Identifier, b.Identifier)
		default:
			c = a.RequestedAt.Compare(b.RequestedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID.String(), b.ID.String())
		}
		if dir == models.SortDesc {
			return -c
		}
		return c
	}
}
