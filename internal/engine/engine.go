package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/simbroker/papertrade-api/internal/ledger"
	"github.com/simbroker/papertrade-api/internal/quotes"
	"github.com/simbroker/papertrade-api/internal/types"
	"gorm.io/gorm"
)

// QuoteSource supplies the latest known price for an asset. The engine never
// writes quotes.
type QuoteSource interface {
	GetLatestQuote(assetID string) (*types.Quote, error)
}

// FillApplier applies the monetary effect of a fill inside the supplied
// transaction. Business-rule rejections (insufficient cash or shares) must
// satisfy ledger.Rejected; any other error is treated as transient.
type FillApplier interface {
	ApplyFillTx(tx *gorm.DB, accountID, assetID, side string, quantity, price float64) error
}

// Config carries the engine's operational tuning parameters.
type Config struct {
	QuoteFreshness time.Duration // max quote age still valid for pricing
	RetryCap       int           // transient retries before forcing FAILED
	BatchSize      int           // PENDING orders loaded per page
	ClaimTimeout   time.Duration // PROCESSING claims older than this are abandoned
	BatchBudget    time.Duration // wall-clock limit per processing pass
	Retention      time.Duration // terminal orders older than this are swept
}

// Service is the order execution engine. Invocations may overlap freely: the
// only coordination between them is the version-gated conditional write on
// each order, so two concurrent passes advance disjoint subsets of the
// backlog instead of blocking or double-executing.
type Service struct {
	db     *Database
	quotes QuoteSource
	fills  FillApplier
	cfg    Config
}

// NewService creates the execution engine with its collaborators.
func NewService(gormDB *gorm.DB, quoteSource QuoteSource, fills FillApplier, cfg Config) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		quotes: quoteSource,
		fills:  fills,
		cfg:    cfg,
	}
}

// ProcessAllPendingOrders runs one pass over the pending backlog: expire what
// is overdue, claim and execute what is eligible, leave the rest for the next
// invocation. Failures are isolated per order; the call only reports overall
// failure when the order store itself is unavailable. The pass respects the
// configured wall-clock budget and returns partial results on a large
// backlog.
func (s *Service) ProcessAllPendingOrders(ctx context.Context) *types.ProcessResult {
	logger := log.With().Str("service", "engine").Logger()
	result := &types.ProcessResult{Success: true}

	if s.cfg.BatchBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.BatchBudget)
		defer cancel()
	}

	logger.Info().Msg("starting processing pass")

	// Recover claims abandoned by a crashed or timed-out invocation before
	// scanning the backlog, so those orders re-enter PENDING this pass.
	s.reclaimStuckOrders(logger)

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("processed", result.OrdersProcessed).
				Msg("batch budget exhausted, returning partial results")
			break
		}

		orders, err := s.db.LoadPending(s.cfg.BatchSize, offset)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load pending orders")
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("order store unavailable: %v", err))
			return result
		}
		if len(orders) == 0 {
			break
		}

		// Orders we leave in PENDING stay visible to the next page query,
		// so advance the offset past them to avoid rescanning.
		remaining := 0
		for i := range orders {
			if ctx.Err() != nil {
				break
			}
			result.OrdersProcessed++
			if !s.processOrder(logger, &orders[i], result) {
				remaining++
			}
		}
		offset += remaining

		if len(orders) < s.cfg.BatchSize {
			break
		}
	}

	logger.Info().
		Int("processed", result.OrdersProcessed).
		Int("executed", result.OrdersExecuted).
		Int("expired", result.OrdersExpired).
		Int("failed", result.OrdersFailed).
		Int("errors", len(result.Errors)).
		Msg("processing pass completed")

	return result
}

// processOrder evaluates and, if possible, advances a single PENDING order.
// It reports whether the order left PENDING in this pass.
func (s *Service) processOrder(logger zerolog.Logger, order *types.Order, result *types.ProcessResult) bool {
	orderLogger := logger.With().
		Str("order_id", order.OrderID).
		Str("asset_id", order.AssetID).
		Str("side", order.Side).
		Logger()

	now := time.Now()

	quote, err := s.quotes.GetLatestQuote(order.AssetID)
	if err != nil && !errors.Is(err, quotes.ErrNotAvailable) {
		// Quote lookup failed before any claim was taken: defer the order
		// without consuming its retry budget.
		orderLogger.Warn().Err(err).Msg("quote lookup failed, deferring order")
		return false
	}

	decision := Evaluate(order, quote, now, s.cfg.QuoteFreshness)

	switch decision.Outcome {
	case OutcomeExpired:
		err := s.db.CompareAndSwapStatus(order.OrderID, order.Version, types.StatusExpired,
			map[string]interface{}{"terminal_at": now})
		if errors.Is(err, types.ErrVersionMismatch) {
			// Another invocation already advanced this order.
			orderLogger.Debug().Msg("lost expiry race, skipping")
			return true
		}
		if err != nil {
			orderLogger.Error().Err(err).Msg("failed to expire order")
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: expiry write failed: %v", order.OrderID, err))
			return false
		}
		orderLogger.Info().Msg("order expired")
		result.OrdersExpired++
		return true

	case OutcomeEligible:
		// The claim: only the invocation that wins this conditional write
		// proceeds to execute.
		err := s.db.CompareAndSwapStatus(order.OrderID, order.Version, types.StatusProcessing, nil)
		if errors.Is(err, types.ErrVersionMismatch) {
			orderLogger.Debug().Msg("lost claim race, skipping")
			return true
		}
		if err != nil {
			orderLogger.Error().Err(err).Msg("failed to claim order")
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: claim write failed: %v", order.OrderID, err))
			return false
		}
		s.executeClaimed(orderLogger, order, decision.FillPrice, result)
		return true

	default: // OutcomeNotYetEligible
		orderLogger.Debug().Msg("order not yet eligible")
		return false
	}
}

// executeClaimed commits the fill for an order this invocation just claimed.
// order.Version still holds the pre-claim value.
func (s *Service) executeClaimed(logger zerolog.Logger, order *types.Order, fillPrice float64, result *types.ProcessResult) {
	claimedVersion := order.Version + 1
	now := time.Now()

	err := s.commitFill(order, fillPrice, claimedVersion, now)
	if err == nil {
		logger.Info().
			Float64("fill_price", fillPrice).
			Float64("quantity", order.Quantity).
			Msg("order executed")
		result.OrdersExecuted++
		return
	}

	if ledger.Rejected(err) {
		// Business rejection: the fill can never succeed, terminate the
		// order. No ledger mutation was committed.
		casErr := s.db.CompareAndSwapStatus(order.OrderID, claimedVersion, types.StatusFailed,
			map[string]interface{}{
				"failure_reason": err.Error(),
				"terminal_at":    now,
			})
		if casErr != nil && !errors.Is(casErr, types.ErrVersionMismatch) {
			logger.Error().Err(casErr).Msg("failed to record order failure")
		}
		logger.Warn().Err(err).Msg("fill rejected by ledger")
		result.OrdersFailed++
		result.Errors = append(result.Errors, fmt.Sprintf("order %s: %v", order.OrderID, err))
		return
	}

	// Transient fault: return the order to PENDING rather than leaving it
	// stuck in PROCESSING, unless the retry budget is exhausted.
	s.releaseClaim(logger, order, claimedVersion, err, result)
}

// commitFill applies the ledger mutation and the PROCESSING -> EXECUTED
// transition in one transaction, so a fill is never partially observable.
func (s *Service) commitFill(order *types.Order, fillPrice float64, claimedVersion int64, now time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.fills.ApplyFillTx(tx, order.AccountID, order.AssetID, order.Side,
			order.Quantity, fillPrice); err != nil {
			return err
		}
		return compareAndSwapStatusTx(tx, order.OrderID, claimedVersion, types.StatusExecuted,
			map[string]interface{}{
				"executed_at":       now,
				"executed_price":    fillPrice,
				"executed_quantity": order.Quantity,
				"terminal_at":       now,
			})
	})
}

// releaseClaim moves a claimed order back to PENDING after a transient fault,
// or to FAILED once its retry budget is spent.
func (s *Service) releaseClaim(logger zerolog.Logger, order *types.Order, claimedVersion int64, cause error, result *types.ProcessResult) {
	retries := order.RetryCount + 1

	if retries >= s.cfg.RetryCap {
		err := s.db.CompareAndSwapStatus(order.OrderID, claimedVersion, types.StatusFailed,
			map[string]interface{}{
				"retry_count":    retries,
				"failure_reason": fmt.Sprintf("retry budget exhausted: %v", cause),
				"terminal_at":    time.Now(),
			})
		if err != nil && !errors.Is(err, types.ErrVersionMismatch) {
			logger.Error().Err(err).Msg("failed to record retry exhaustion")
		}
		logger.Warn().Err(cause).Int("retries", retries).Msg("retry budget exhausted, order failed")
		result.OrdersFailed++
		result.Errors = append(result.Errors, fmt.Sprintf("order %s: retry budget exhausted: %v", order.OrderID, cause))
		return
	}

	err := s.db.CompareAndSwapStatus(order.OrderID, claimedVersion, types.StatusPending,
		map[string]interface{}{"retry_count": retries})
	if err != nil && !errors.Is(err, types.ErrVersionMismatch) {
		logger.Error().Err(err).Msg("failed to release claim")
		result.Errors = append(result.Errors, fmt.Sprintf("order %s: claim release failed: %v", order.OrderID, err))
		return
	}
	logger.Warn().Err(cause).Int("retry_count", retries).Msg("transient fault, order returned to pending")
}

// reclaimStuckOrders recovers PROCESSING claims older than the claim timeout.
// A stuck claim is treated as a transient failure of its owner: the order is
// retried, never silently re-executed.
func (s *Service) reclaimStuckOrders(logger zerolog.Logger) {
	cutoff := time.Now().Add(-s.cfg.ClaimTimeout)
	orders, err := s.db.LoadStuckProcessing(cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load stuck processing orders")
		return
	}
	if len(orders) == 0 {
		return
	}

	logger.Warn().Int("count", len(orders)).Msg("reclaiming abandoned processing claims")

	for i := range orders {
		order := &orders[i]
		retries := order.RetryCount + 1

		var casErr error
		if retries >= s.cfg.RetryCap {
			casErr = s.db.CompareAndSwapStatus(order.OrderID, order.Version, types.StatusFailed,
				map[string]interface{}{
					"retry_count":    retries,
					"failure_reason": "processing claim abandoned and retry budget exhausted",
					"terminal_at":    time.Now(),
				})
		} else {
			casErr = s.db.CompareAndSwapStatus(order.OrderID, order.Version, types.StatusPending,
				map[string]interface{}{"retry_count": retries})
		}

		if casErr != nil && !errors.Is(casErr, types.ErrVersionMismatch) {
			logger.Error().Err(casErr).Str("order_id", order.OrderID).Msg("failed to reclaim order")
		}
	}
}
