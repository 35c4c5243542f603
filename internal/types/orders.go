package types

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order kinds
const (
	KindMarket = "MARKET"
	KindLimit  = "LIMIT"
)

// Order statuses. PENDING and PROCESSING are the only non-terminal states;
// every transition bumps Version so overlapping engine runs can detect that
// another run already advanced the order.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusExecuted   = "EXECUTED"
	StatusExpired    = "EXPIRED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// ErrVersionMismatch is returned by conditional status updates when the
// order's version no longer matches: another invocation already moved the
// order on. Callers skip the order silently.
var ErrVersionMismatch = errors.New("order version mismatch")

type Order struct {
	gorm.Model `json:"-"`
	OrderID    string   `gorm:"uniqueIndex" json:"order_id"`
	AccountID  string   `gorm:"index" json:"account_id"`
	AssetID    string   `gorm:"index" json:"asset_id"`
	Side       string   `json:"side"`     // BUY or SELL
	Kind       string   `json:"kind"`     // MARKET or LIMIT
	Quantity   float64  `json:"quantity"` // immutable once created
	LimitPrice *float64 `json:"limit_price,omitempty"` // set iff Kind is LIMIT

	Status  string `gorm:"index" json:"status"`
	Version int64  `json:"version"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Set only when Status == EXECUTED. ExecutedQuantity always equals
	// Quantity: fills are all-or-nothing.
	ExecutedAt       *time.Time `json:"executed_at,omitempty"`
	ExecutedPrice    *float64   `json:"executed_price,omitempty"`
	ExecutedQuantity *float64   `json:"executed_quantity,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
	RetryCount    int    `json:"retry_count"`

	// Set on entering any terminal state; drives the retention sweep.
	TerminalAt *time.Time `gorm:"index" json:"terminal_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the order is in a state the engine will never
// transition out of.
func (o *Order) Terminal() bool {
	switch o.Status {
	case StatusExecuted, StatusExpired, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// ExpiredAt reports whether the order carries an expiry that has passed at t.
func (o *Order) ExpiredAt(t time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(t)
}

// Quote is the latest known price for an asset, as delivered by the external
// quote feed. The engine only prices fills against quotes whose AsOf falls
// within the configured freshness window.
type Quote struct {
	gorm.Model `json:"-"`
	AssetID    string    `gorm:"uniqueIndex" json:"asset_id"`
	Price      float64   `json:"price"`
	AsOf       time.Time `json:"as_of"`
}

// Fresh reports whether the quote is recent enough to price a fill at t.
func (q *Quote) Fresh(t time.Time, window time.Duration) bool {
	return t.Sub(q.AsOf) <= window
}
