package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor drives the engine on a fixed cadence. Manual triggers through the
// HTTP surface may overlap with a ticking run; the per-order claim protocol
// makes that safe, so no coordination happens here.
type Processor struct {
	engine          *Service
	processInterval time.Duration
	cleanupInterval time.Duration
}

func NewProcessor(engine *Service, processInterval, cleanupInterval time.Duration) *Processor {
	return &Processor{
		engine:          engine,
		processInterval: processInterval,
		cleanupInterval: cleanupInterval,
	}
}

// Start runs the processing and cleanup loops until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "engine_processor").Logger()
	logger.Info().
		Dur("process_interval", p.processInterval).
		Dur("cleanup_interval", p.cleanupInterval).
		Msg("starting engine processor")

	processTicker := time.NewTicker(p.processInterval)
	defer processTicker.Stop()
	cleanupTicker := time.NewTicker(p.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down engine processor")
			return
		case <-processTicker.C:
			result := p.engine.ProcessAllPendingOrders(ctx)
			if !result.Success {
				logger.Error().Strs("errors", result.Errors).Msg("scheduled processing pass failed")
			}
		case <-cleanupTicker.C:
			result := p.engine.CleanupOrders(ctx)
			if len(result.Errors) > 0 {
				logger.Error().Strs("errors", result.Errors).Msg("scheduled cleanup reported errors")
			}
		}
	}
}
