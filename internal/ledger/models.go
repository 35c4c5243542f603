package ledger

import (
	"time"

	"gorm.io/gorm"
)

type Account struct {
	gorm.Model  `json:"-"`
	AccountID   string    `gorm:"uniqueIndex" json:"account_id"`
	CashBalance float64   `json:"cash_balance"` // never negative
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Position struct {
	gorm.Model `json:"-"`
	AccountID  string    `gorm:"index:idx_account_asset,unique" json:"account_id"`
	AssetID    string    `gorm:"index:idx_account_asset,unique" json:"asset_id"`
	Quantity   float64   `json:"quantity"` // never negative
	UpdatedAt  time.Time `json:"updated_at"`
}

// AccountResponse is the account view returned by the API, cash plus holdings.
type AccountResponse struct {
	AccountID   string     `json:"account_id"`
	CashBalance float64    `json:"cash_balance"`
	Positions   []Position `json:"positions"`
}
