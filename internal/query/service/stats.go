package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"idlookup/internal/query/models"
	dErrors "idlookup/pkg/domain-errors"
)

// StatsFor counts the caller's records by status plus those requested since
// the start of the caller's day in the configured location.
func (s *Service) StatsFor(ctx context.Context, callerID string) (*models.Stats, error) {
	var (
		byStatus map[models.Status]int64
		today    int64
	)
	since := startOfDay(s.now(), s.location)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.store.CountByStatus(gctx, callerID)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.store.CountSince(gctx, callerID, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute query stats")
	}

	stats := &models.Stats{
		Completed: byStatus[models.StatusCompleted],
		Failed:    byStatus[models.StatusFailed],
		Pending:   byStatus[models.StatusPending],
		Today:     today,
	}
	stats.Total = stats.Completed + stats.Failed + stats.Pending
	return stats, nil
}

func startOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
