package types

import "time"

// ProcessResult aggregates one engine pass over the pending backlog.
// A single order's failure never fails the batch; per-order problems are
// collected in Errors and Success only reflects order-store availability.
type ProcessResult struct {
	Success         bool     `json:"success"`
	OrdersProcessed int      `json:"orders_processed"`
	OrdersExecuted  int      `json:"orders_executed"`
	OrdersExpired   int      `json:"orders_expired"`
	OrdersFailed    int      `json:"orders_failed"`
	Errors          []string `json:"errors,omitempty"`
}

// CleanupResult aggregates one retention sweep.
type CleanupResult struct {
	Cleaned int      `json:"cleaned"`
	Errors  []string `json:"errors,omitempty"`
}

// ProcessingStats is a read-only snapshot of the order backlog.
type ProcessingStats struct {
	CountsByStatus   map[string]int64 `json:"counts_by_status"`
	OldestPendingAge time.Duration    `json:"oldest_pending_age"`
	// PENDING orders bucketed by age, to surface backlog growth.
	PendingAgeBuckets map[string]int64 `json:"pending_age_buckets"`
}
