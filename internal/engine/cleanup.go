package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simbroker/papertrade-api/internal/types"
)

// CleanupOrders sweeps terminal orders past the retention window and
// force-expires PENDING orders whose expiry has passed, in case the main
// processing pass has not run (missed scheduler cycles). The forced expiry
// reuses the same PENDING -> EXPIRED conditional transition as the engine,
// so it is equally safe under concurrent invocations.
func (s *Service) CleanupOrders(ctx context.Context) *types.CleanupResult {
	logger := log.With().Str("service", "engine_cleanup").Logger()
	result := &types.CleanupResult{}

	now := time.Now()

	overdue, err := s.db.LoadOverduePending(now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load overdue pending orders")
		result.Errors = append(result.Errors, fmt.Sprintf("load overdue orders failed: %v", err))
	}

	expired := 0
	for i := range overdue {
		if ctx.Err() != nil {
			break
		}
		order := &overdue[i]
		err := s.db.CompareAndSwapStatus(order.OrderID, order.Version, types.StatusExpired,
			map[string]interface{}{"terminal_at": now})
		if errors.Is(err, types.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to force-expire order")
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: expiry write failed: %v", order.OrderID, err))
			continue
		}
		expired++
	}

	cutoff := now.Add(-s.cfg.Retention)
	cleaned, err := s.db.DeleteTerminalOlderThan(cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("retention sweep failed")
		result.Errors = append(result.Errors, fmt.Sprintf("retention sweep failed: %v", err))
	}
	result.Cleaned = int(cleaned)

	logger.Info().
		Int("cleaned", result.Cleaned).
		Int("force_expired", expired).
		Time("retention_cutoff", cutoff).
		Msg("cleanup sweep completed")

	return result
}
