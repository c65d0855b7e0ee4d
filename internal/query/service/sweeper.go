package service

import (
	"context"
	"time"

	"idlookup/pkg/platform/audit"
)

// SweepStale marks PENDING records older than the stale threshold as FAILED.
// No tokens move: a stale record either never debited or its process died
// mid-flight, and reconciling that is left to the ledger owner.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	swept := 0
	for {
		records, err := s.store.ListStalePending(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return swept, err
		}
		batch := 0
		for _, record := range records {
			if err := record.MarkFailed(messageAbandoned, s.now()); err != nil {
				continue
			}
			if err := s.store.Update(ctx, record); err != nil {
				s.logger.WarnContext(ctx, "failed to mark stale query", "query_id", record.ID.String(), "error", err)
				continue
			}
			s.emit(ctx, record, audit.ActionQueryAbandoned, "", messageAbandoned)
			batch++
		}
		swept += batch
		if batch == 0 || len(records) < sweepBatchSize {
			break
		}
	}
	if swept > 0 {
		s.logger.InfoContext(ctx, "stale queries swept", "count", swept, "cutoff", cutoff)
	}
	s.metrics.AddAbandoned(swept)
	return swept, nil
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepStale(ctx); err != nil {
				s.logger.ErrorContext(ctx, "stale query sweep failed", "error", err)
			}
		}
	}
}
