package engine

import (
	"time"

	"github.com/simbroker/papertrade-api/internal/types"
	"gorm.io/gorm"
)

// Database is the engine's view of the order store. Every mutation is a
// conditional write keyed on (order_id, expected version); RowsAffected == 0
// means another invocation already advanced the order.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// LoadPending returns a page of PENDING orders, oldest first.
func (d *Database) LoadPending(limit, offset int) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("status = ?", types.StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// LoadOverduePending returns PENDING orders whose expiry has already passed.
func (d *Database) LoadOverduePending(now time.Time) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
		types.StatusPending, now).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// LoadStuckProcessing returns PROCESSING orders whose claim has not advanced
// since before cutoff. Their owning invocation is presumed dead.
func (d *Database) LoadStuckProcessing(cutoff time.Time) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("status = ? AND updated_at < ?", types.StatusProcessing, cutoff).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// CompareAndSwapStatus transitions an order to newStatus iff its version
// still equals expectedVersion, bumping the version in the same write.
// Returns types.ErrVersionMismatch when the order was already advanced.
func (d *Database) CompareAndSwapStatus(orderID string, expectedVersion int64, newStatus string, fields map[string]interface{}) error {
	return compareAndSwapStatusTx(d.db, orderID, expectedVersion, newStatus, fields)
}

// Transaction runs fn inside a gorm transaction with explicit
// begin/rollback/commit and panic recovery.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func compareAndSwapStatusTx(tx *gorm.DB, orderID string, expectedVersion int64, newStatus string, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     newStatus,
		"version":    expectedVersion + 1,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := tx.Model(&types.Order{}).
		Where("order_id = ? AND version = ?", orderID, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrVersionMismatch
	}
	return nil
}

// DeleteTerminalOlderThan removes orders that entered a terminal state before
// cutoff. Non-terminal orders never carry terminal_at and are untouched.
func (d *Database) DeleteTerminalOlderThan(cutoff time.Time) (int64, error) {
	result := d.db.Unscoped().
		Where("status IN ? AND terminal_at IS NOT NULL AND terminal_at < ?",
			[]string{types.StatusExecuted, types.StatusExpired, types.StatusCancelled, types.StatusFailed},
			cutoff).
		Delete(&types.Order{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountsByStatus groups the whole order table by status in a single read.
func (d *Database) CountsByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := d.db.Model(&types.Order{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// OldestPending returns the creation time of the oldest PENDING order, or
// nil when the backlog is empty.
func (d *Database) OldestPending() (*time.Time, error) {
	var order types.Order
	err := d.db.Where("status = ?", types.StatusPending).
		Order("created_at ASC").
		First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order.CreatedAt, nil
}

// PendingAgeBuckets buckets the PENDING backlog by age to surface growth.
func (d *Database) PendingAgeBuckets(now time.Time) (map[string]int64, error) {
	type result struct {
		Under1m int64
		Under1h int64
		Over1h  int64
	}
	var r result

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0) as under1m,
			COALESCE(SUM(CASE WHEN created_at < ? AND created_at >= ? THEN 1 ELSE 0 END), 0) as under1h,
			COALESCE(SUM(CASE WHEN created_at < ? THEN 1 ELSE 0 END), 0) as over1h
		FROM orders
		WHERE status = ? AND deleted_at IS NULL`

	oneMinuteAgo := now.Add(-time.Minute)
	oneHourAgo := now.Add(-time.Hour)
	if err := d.db.Raw(query, oneMinuteAgo, oneMinuteAgo, oneHourAgo, oneHourAgo,
		types.StatusPending).Scan(&r).Error; err != nil {
		return nil, err
	}

	return map[string]int64{
		"under_1m": r.Under1m,
		"1m_to_1h": r.Under1h,
		"over_1h":  r.Over1h,
	}, nil
}
