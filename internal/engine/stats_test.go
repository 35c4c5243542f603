package engine

import (
	"testing"
	"time"

	"github.com/simbroker/papertrade-api/internal/types"
)

func TestGetOrderProcessingStats(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	now := time.Now()

	seedOrder(t, db, &types.Order{
		AccountID: "ACC_1", AssetID: "AAPL",
		Side: types.SideBuy, Kind: types.KindMarket, Quantity: 1,
	})
	aged := seedOrder(t, db, &types.Order{
		AccountID: "ACC_1", AssetID: "AAPL",
		Side: types.SideBuy, Kind: types.KindMarket, Quantity: 1,
	})
	terminal := now.Add(-time.Minute)
	seedOrder(t, db, &types.Order{
		AccountID: "ACC_1", AssetID: "AAPL",
		Side: types.SideSell, Kind: types.KindMarket, Quantity: 1,
		Status: types.StatusExecuted, TerminalAt: &terminal,
	})
	seedOrder(t, db, &types.Order{
		AccountID: "ACC_1", AssetID: "AAPL",
		Side: types.SideSell, Kind: types.KindMarket, Quantity: 1,
		Status: types.StatusFailed, TerminalAt: &terminal,
	})

	// Age one pending order into the over-1h bucket.
	old := now.Add(-2 * time.Hour)
	if err := db.Model(&types.Order{}).
		Where("order_id = ?", aged.OrderID).
		UpdateColumn("created_at", old).Error; err != nil {
		t.Fatalf("failed to backdate order: %v", err)
	}

	stats, err := engine.GetOrderProcessingStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	if got := stats.CountsByStatus[types.StatusPending]; got != 2 {
		t.Fatalf("pending count = %d, want 2", got)
	}
	if got := stats.CountsByStatus[types.StatusExecuted]; got != 1 {
		t.Fatalf("executed count = %d, want 1", got)
	}
	if got := stats.CountsByStatus[types.StatusFailed]; got != 1 {
		t.Fatalf("failed count = %d, want 1", got)
	}

	if stats.OldestPendingAge < time.Hour {
		t.Fatalf("oldest pending age = %v, want at least 1h", stats.OldestPendingAge)
	}

	if got := stats.PendingAgeBuckets["over_1h"]; got != 1 {
		t.Fatalf("over_1h bucket = %d, want 1", got)
	}
	if got := stats.PendingAgeBuckets["under_1m"]; got != 1 {
		t.Fatalf("under_1m bucket = %d, want 1", got)
	}
}

func TestStatsOnEmptyBacklog(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	stats, err := engine.GetOrderProcessingStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.OldestPendingAge != 0 {
		t.Fatalf("oldest pending age = %v, want 0", stats.OldestPendingAge)
	}
	if len(stats.CountsByStatus) != 0 {
		t.Fatalf("counts = %v, want empty", stats.CountsByStatus)
	}
}
