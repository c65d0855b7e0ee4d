//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/internal/query/models"
	"idlookup/internal/query/store"
	"idlookup/pkg/platform/sentinel"
	"idlookup/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	base     time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "query_records"))
}

func (s *PostgresStoreSuite) create(raw, callerID string, at time.Time) *models.QueryRecord {
	r := models.NewQueryRecord(identifier.MustDecompose(raw), callerID, 1, "10.0.0.1", "Firefox on Linux", at)
	s.Require().NoError(s.store.Create(context.Background(), r))
	return r
}

func (s *PostgresStoreSuite) TestRoundTripWithResult() {
	ctx := context.Background()
	r := s.create("00123456782", "c1", s.base)

	name := "ANA"
	res := &lookup.Result{
		GivenNames:     &name,
		Success:        true,
		Message:        lookup.MessageSuccess,
		QueriedAt:      s.base,
		ValidationInfo: identifier.MustDecompose("00123456782").ValidationInfo(),
	}
	s.Require().NoError(r.MarkCompleted(res, s.base.Add(time.Second)))
	s.Require().NoError(s.store.Update(ctx, r))

	got, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.Require().NotNil(got.Result)
	s.Equal("ANA", *got.Result.GivenNames)
	s.Nil(got.Result.FirstSurname)
	s.True(got.Result.ValidationInfo.CheckDigitValid)
	s.Equal("Firefox on Linux", got.UserAgent)
	s.Require().NotNil(got.CompletedAt)
	s.True(got.CompletedAt.Equal(s.base.Add(time.Second)))

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateCreateConflicts() {
	r := s.create("00123456782", "c1", s.base)
	s.ErrorIs(s.store.Create(context.Background(), r), sentinel.ErrConflict)
}

// TestConcurrentTerminalTransitions verifies that when completion and the
// sweeper race, exactly one terminal write lands.
func (s *PostgresStoreSuite) TestConcurrentTerminalTransitions() {
	ctx := context.Background()
	r := s.create("00123456782", "c1", s.base)

	var wg sync.WaitGroup
	var applied, rejected atomic.Int32
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := r.Clone()
			if i%2 == 0 {
				s.NoError(cp.MarkCompleted(&lookup.Result{Success: true}, s.base))
			} else {
				s.NoError(cp.MarkFailed("abandoned", s.base))
			}
			switch err := s.store.Update(ctx, cp); err {
			case nil:
				applied.Add(1)
			case sentinel.ErrInvalidState:
				rejected.Add(1)
			default:
				s.Fail("unexpected error", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), applied.Load())
	s.Equal(int32(9), rejected.Load())
}

func (s *PostgresStoreSuite) TestPagingAndSorting() {
	ctx := context.Background()
	s.create("00112345673", "c1", s.base)
	s.create("00123456782", "c1", s.base.Add(time.Minute))
	s.create("00100000001", "c1", s.base.Add(2*time.Minute))
	s.create("00123456782", "c2", s.base)

	req, err := models.PageRequest{Size: 2, SortBy: models.SortByIdentifier, SortDir: models.SortAsc}.Normalize()
	s.Require().NoError(err)
	items, total, err := s.store.ListByCaller(ctx, "c1", req)
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(items, 2)
	s.Equal("001-0000000-1", items[0].Identifier)
	s.Equal("001-1234567-3", items[1].Identifier)

	recent, err := s.store.ListRecent(ctx, "c1", 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("001-0000000-1", recent[0].Identifier)

	found, err := s.store.ListByIdentifier(ctx, "c1", "001-2345678-2")
	s.Require().NoError(err)
	s.Len(found, 1)
}

func (s *PostgresStoreSuite) TestCountsAndStale() {
	ctx := context.Background()
	a := s.create("00123456782", "c1", s.base.Add(-time.Hour))
	s.create("00123456782", "c1", s.base)
	s.Require().NoError(a.MarkFailed("boom", s.base))
	s.Require().NoError(s.store.Update(ctx, a))
	stale := s.create("00112345673", "c1", s.base.Add(-2*time.Hour))

	counts, err := s.store.CountByStatus(ctx, "c1")
	s.Require().NoError(err)
	s.Equal(int64(2), counts[models.StatusPending])
	s.Equal(int64(1), counts[models.StatusFailed])

	today, err := s.store.CountSince(ctx, "c1", s.base.Add(-time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), today)

	pending, err := s.store.ListStalePending(ctx, s.base.Add(-time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(stale.ID, pending[0].ID)
}
