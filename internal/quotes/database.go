package quotes

import (
	"errors"
	"time"

	"github.com/simbroker/papertrade-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetQuote(assetID string) (*types.Quote, error) {
	var quote types.Quote
	if err := d.db.Where("asset_id = ?", assetID).First(&quote).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAvailable
		}
		return nil, err
	}
	return &quote, nil
}

// UpsertQuote replaces the cached quote for the asset. One row per asset; the
// cache only ever holds the latest known price.
func (d *Database) UpsertQuote(assetID string, price float64, asOf time.Time) error {
	result := d.db.Model(&types.Quote{}).
		Where("asset_id = ?", assetID).
		Updates(map[string]interface{}{
			"price":      price,
			"as_of":      asOf,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return d.db.Create(&types.Quote{
		AssetID: assetID,
		Price:   price,
		AsOf:    asOf,
	}).Error
}
