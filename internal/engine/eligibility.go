package engine

import (
	"time"

	"github.com/simbroker/papertrade-api/internal/types"
)

// Outcome classifies whether a pending order can fill right now.
type Outcome int

const (
	// OutcomeNotYetEligible means market conditions do not currently permit
	// a fill (no quote, stale quote, or limit price not reached). The order
	// stays PENDING and is reconsidered on the next pass.
	OutcomeNotYetEligible Outcome = iota
	// OutcomeEligible means the order can fill now at Decision.FillPrice.
	OutcomeEligible
	// OutcomeExpired means the order's expiry has passed. Expiry takes
	// priority over a technically fillable price.
	OutcomeExpired
)

// Decision is the result of evaluating one order against the freshest quote.
type Decision struct {
	Outcome   Outcome
	FillPrice float64 // set iff Outcome == OutcomeEligible
}

// Evaluate decides whether an order can fill against the given quote at time
// now. It is pure: no side effects, no clock or store access. quote may be
// nil when no price has ever been delivered for the asset.
//
// Expiration is checked before anything else. A stale quote (older than the
// freshness window) never prices a fill; the order simply waits. Limit orders
// fill at the quote price, passing any price improvement to the trader.
func Evaluate(order *types.Order, quote *types.Quote, now time.Time, freshness time.Duration) Decision {
	if order.ExpiredAt(now) {
		return Decision{Outcome: OutcomeExpired}
	}

	if quote == nil || !quote.Fresh(now, freshness) {
		return Decision{Outcome: OutcomeNotYetEligible}
	}

	switch order.Kind {
	case types.KindMarket:
		return Decision{Outcome: OutcomeEligible, FillPrice: quote.Price}

	case types.KindLimit:
		if order.LimitPrice == nil {
			// Limit order without a limit price is malformed; never fill it.
			return Decision{Outcome: OutcomeNotYetEligible}
		}
		limit := *order.LimitPrice
		if order.Side == types.SideBuy && quote.Price <= limit {
			return Decision{Outcome: OutcomeEligible, FillPrice: quote.Price}
		}
		if order.Side == types.SideSell && quote.Price >= limit {
			return Decision{Outcome: OutcomeEligible, FillPrice: quote.Price}
		}
	}

	return Decision{Outcome: OutcomeNotYetEligible}
}
