package ledger

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simbroker/papertrade-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&Account{}, &Position{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewService(db), db
}

func mustCreateAccount(t *testing.T, service *Service, cash float64) *Account {
	t.Helper()
	account, err := service.CreateAccount(cash)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}

func applyFill(t *testing.T, db *gorm.DB, accountID, assetID, side string, quantity, price float64) error {
	t.Helper()
	tx := db.Begin()
	err := ApplyFillTx(tx, accountID, assetID, side, quantity, price)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	return nil
}

func TestCreateAndGetAccount(t *testing.T) {
	service, _ := newTestService(t)

	account := mustCreateAccount(t, service, 5000)
	if !strings.HasPrefix(account.AccountID, "ACC_") {
		t.Fatalf("account id = %q, want ACC_ prefix", account.AccountID)
	}

	got, err := service.GetAccount(account.AccountID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.CashBalance != 5000 {
		t.Fatalf("cash = %v, want 5000", got.CashBalance)
	}
	if len(got.Positions) != 0 {
		t.Fatalf("positions = %v, want none", got.Positions)
	}

	if _, err := service.GetAccount("ACC_missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing account error = %v, want ErrAccountNotFound", err)
	}
}

func TestDeposit(t *testing.T) {
	service, _ := newTestService(t)
	account := mustCreateAccount(t, service, 100)

	if err := service.Deposit(account.AccountID, 400); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	got, err := service.GetAccount(account.AccountID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.CashBalance != 500 {
		t.Fatalf("cash = %v, want 500", got.CashBalance)
	}

	if err := service.Deposit("ACC_missing", 100); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing account error = %v, want ErrAccountNotFound", err)
	}
}

func TestApplyFillBuy(t *testing.T) {
	service, db := newTestService(t)
	account := mustCreateAccount(t, service, 1000)

	if err := applyFill(t, db, account.AccountID, "AAPL", types.SideBuy, 4, 100); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	// A second buy of the same asset accumulates onto the position row.
	if err := applyFill(t, db, account.AccountID, "AAPL", types.SideBuy, 2, 100); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	got, err := service.GetAccount(account.AccountID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.CashBalance != 400 {
		t.Fatalf("cash = %v, want 400", got.CashBalance)
	}
	if len(got.Positions) != 1 || got.Positions[0].Quantity != 6 {
		t.Fatalf("positions = %v, want single AAPL position of 6", got.Positions)
	}
}

func TestApplyFillSell(t *testing.T) {
	service, db := newTestService(t)
	account := mustCreateAccount(t, service, 0)
	if err := db.Create(&Position{AccountID: account.AccountID, AssetID: "MSFT", Quantity: 10}).Error; err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}

	if err := applyFill(t, db, account.AccountID, "MSFT", types.SideSell, 4, 50); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	got, err := service.GetAccount(account.AccountID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.CashBalance != 200 {
		t.Fatalf("cash = %v, want 200", got.CashBalance)
	}
	if len(got.Positions) != 1 || got.Positions[0].Quantity != 6 {
		t.Fatalf("positions = %v, want MSFT position of 6", got.Positions)
	}
}

func TestApplyFillRejections(t *testing.T) {
	service, db := newTestService(t)
	account := mustCreateAccount(t, service, 100)

	err := applyFill(t, db, account.AccountID, "AAPL", types.SideBuy, 10, 50)
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("overdraw error = %v, want ErrInsufficientCash", err)
	}
	if !Rejected(err) {
		t.Fatal("insufficient cash not classified as a rejection")
	}

	err = applyFill(t, db, account.AccountID, "AAPL", types.SideSell, 1, 50)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("short sell error = %v, want ErrInsufficientShares", err)
	}

	err = applyFill(t, db, "ACC_missing", "AAPL", types.SideBuy, 1, 50)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing account error = %v, want ErrAccountNotFound", err)
	}

	// Transient infrastructure faults are not rejections.
	if Rejected(errors.New("database is locked")) {
		t.Fatal("transient fault classified as a rejection")
	}

	// Rejected fills leave the account untouched.
	got, lookupErr := service.GetAccount(account.AccountID)
	if lookupErr != nil {
		t.Fatalf("lookup failed: %v", lookupErr)
	}
	if got.CashBalance != 100 {
		t.Fatalf("cash = %v, want unchanged 100", got.CashBalance)
	}
	if len(got.Positions) != 0 {
		t.Fatalf("positions = %v, want none", got.Positions)
	}
}
