package engine

import (
	"time"

	"github.com/simbroker/papertrade-api/internal/types"
)

// GetOrderProcessingStats returns a snapshot of the backlog: order counts by
// status, the age of the oldest PENDING order, and the PENDING backlog
// bucketed by age. Observability data only; read-committed is enough.
func (s *Service) GetOrderProcessingStats() (*types.ProcessingStats, error) {
	counts, err := s.db.CountsByStatus()
	if err != nil {
		return nil, err
	}

	now := time.Now()

	var oldestAge time.Duration
	oldest, err := s.db.OldestPending()
	if err != nil {
		return nil, err
	}
	if oldest != nil {
		oldestAge = now.Sub(*oldest)
	}

	buckets, err := s.db.PendingAgeBuckets(now)
	if err != nil {
		return nil, err
	}

	return &types.ProcessingStats{
		CountsByStatus:    counts,
		OldestPendingAge:  oldestAge,
		PendingAgeBuckets: buckets,
	}, nil
}
