package orders

import (
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord maps a client-supplied idempotency key to the order it
// created, so retried submissions return the original order instead of
// creating a duplicate.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CreateOrderRequest is the order-entry payload. LimitPrice must be present
// exactly when Kind is LIMIT.
type CreateOrderRequest struct {
	AccountID  string     `json:"account_id" binding:"required"`
	AssetID    string     `json:"asset_id" binding:"required"`
	Side       string     `json:"side" binding:"required"`
	Kind       string     `json:"kind" binding:"required"`
	Quantity   float64    `json:"quantity" binding:"required"`
	LimitPrice *float64   `json:"limit_price,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
