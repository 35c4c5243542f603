package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/simbroker/papertrade-api/internal/types"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientCash   = errors.New("insufficient cash balance")
	ErrInsufficientShares = errors.New("insufficient held quantity")
)

// Rejected reports whether err is a business-rule rejection rather than a
// transient infrastructure fault. Rejections terminate the order as FAILED;
// anything else goes down the retry path.
func Rejected(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInsufficientCash) ||
		errors.Is(err, ErrInsufficientShares)
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying connection so the engine can open a transaction
// spanning the ledger mutation and the order-status write.
func (d *Database) DB() *gorm.DB {
	return d.db
}

func (d *Database) CreateAccount(account *Account) error {
	return d.db.Create(account).Error
}

func (d *Database) GetAccount(accountID string) (*Account, error) {
	var account Account
	if err := d.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) GetPositions(accountID string) ([]Position, error) {
	var positions []Position
	if err := d.db.Where("account_id = ? AND quantity > 0", accountID).
		Order("asset_id ASC").
		Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// Deposit credits cash to an account.
func (d *Database) Deposit(accountID string, amount float64) error {
	result := d.db.Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"cash_balance": gorm.Expr("cash_balance + ?", amount),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ApplyFillTx implements the engine's FillApplier against the real ledger.
func (d *Database) ApplyFillTx(tx *gorm.DB, accountID, assetID, side string, quantity, price float64) error {
	return ApplyFillTx(tx, accountID, assetID, side, quantity, price)
}

// ApplyFillTx applies the monetary effect of a fill inside the caller's
// transaction. A BUY debits quantity*price from cash and credits the held
// position; a SELL does the inverse. Both balance checks are enforced by the
// conditional UPDATE itself, so concurrent fills against the same account
// cannot overdraw it.
func ApplyFillTx(tx *gorm.DB, accountID, assetID, side string, quantity, price float64) error {
	cost := quantity * price
	now := time.Now()

	switch side {
	case types.SideBuy:
		result := tx.Model(&Account{}).
			Where("account_id = ? AND cash_balance >= ?", accountID, cost).
			Updates(map[string]interface{}{
				"cash_balance": gorm.Expr("cash_balance - ?", cost),
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := accountExistsTx(tx, accountID); err != nil {
				return err
			}
			return fmt.Errorf("%w: need %.2f", ErrInsufficientCash, cost)
		}
		return creditPositionTx(tx, accountID, assetID, quantity, now)

	case types.SideSell:
		result := tx.Model(&Position{}).
			Where("account_id = ? AND asset_id = ? AND quantity >= ?", accountID, assetID, quantity).
			Updates(map[string]interface{}{
				"quantity":   gorm.Expr("quantity - ?", quantity),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := accountExistsTx(tx, accountID); err != nil {
				return err
			}
			return fmt.Errorf("%w: need %v of %s", ErrInsufficientShares, quantity, assetID)
		}
		creditResult := tx.Model(&Account{}).
			Where("account_id = ?", accountID).
			Updates(map[string]interface{}{
				"cash_balance": gorm.Expr("cash_balance + ?", cost),
				"updated_at":   now,
			})
		if creditResult.Error != nil {
			return creditResult.Error
		}
		if creditResult.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return nil

	default:
		return fmt.Errorf("unknown order side %q", side)
	}
}

// creditPositionTx adds quantity to the account's position in assetID,
// creating the row on first purchase.
func creditPositionTx(tx *gorm.DB, accountID, assetID string, quantity float64, now time.Time) error {
	result := tx.Model(&Position{}).
		Where("account_id = ? AND asset_id = ?", accountID, assetID).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", quantity),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return tx.Create(&Position{
		AccountID: accountID,
		AssetID:   assetID,
		Quantity:  quantity,
		UpdatedAt: now,
	}).Error
}

func accountExistsTx(tx *gorm.DB, accountID string) (bool, error) {
	var account Account
	if err := tx.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrAccountNotFound
		}
		return false, err
	}
	return true, nil
}
