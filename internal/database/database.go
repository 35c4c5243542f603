package database

import (
	"github.com/simbroker/papertrade-api/internal/ledger"
	"github.com/simbroker/papertrade-api/internal/orders"
	"github.com/simbroker/papertrade-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection with all
// schemas migrated.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&types.Quote{},
		&ledger.Account{},
		&ledger.Position{},
		&orders.IdempotencyRecord{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
