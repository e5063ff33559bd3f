package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"papertrader/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_OrderUpsert(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	o := &model.Order{
		ID: "PAPER-1", Account: "acct", Symbol: "BTC/USDT",
		Side: model.SideBuy, Type: model.OrderMarket, Qty: 1,
		Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveOrder(o); err != nil {
		t.Fatalf("save pending: %v", err)
	}

	o.Status = model.StatusFilled
	o.FilledQty = 1
	o.AvgPrice = 60000
	o.Fee = 60
	o.UpdatedAt = now.Add(time.Second)
	if err := s.SaveOrder(o); err != nil {
		t.Fatalf("save filled: %v", err)
	}

	orders, err := s.Orders("acct", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1 (upsert, not duplicate)", len(orders))
	}
	got := orders[0]
	if got.Status != model.StatusFilled || got.AvgPrice != 60000 || got.Fee != 60 {
		t.Errorf("order = %+v, want filled @ 60000 fee 60", got)
	}
}

func TestStore_PositionLifecycle(t *testing.T) {
	s := newTestStore(t)
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p := &model.Position{
		ID: "pos-1", Account: "acct", Symbol: "BTC/USDT",
		Side: model.PositionLong, Qty: 2, EntryPrice: 100,
		Status: model.PositionOpen, EntryTime: entry,
	}
	if err := s.SavePosition(p); err != nil {
		t.Fatalf("save open: %v", err)
	}

	open, err := s.Positions("acct", model.PositionOpen)
	if err != nil || len(open) != 1 {
		t.Fatalf("open = %d, %v; want 1", len(open), err)
	}
	if open[0].ExitReason != "" || !open[0].ExitTime.IsZero() {
		t.Errorf("open position carries exit fields: %+v", open[0])
	}

	p.Status = model.PositionClosed
	p.ExitPrice = 104
	p.ExitTime = entry.Add(time.Hour)
	p.ExitReason = model.ExitTakeProfit
	p.RealizedPnL = 8
	if err := s.SavePosition(p); err != nil {
		t.Fatalf("save closed: %v", err)
	}

	if open, _ = s.Positions("acct", model.PositionOpen); len(open) != 0 {
		t.Errorf("closed position still listed as open")
	}
	closed, err := s.Positions("acct", model.PositionClosed)
	if err != nil || len(closed) != 1 {
		t.Fatalf("closed = %d, %v; want 1", len(closed), err)
	}
	got := closed[0]
	if got.ExitReason != model.ExitTakeProfit || got.ExitPrice != 104 || got.RealizedPnL != 8 {
		t.Errorf("closed position = %+v", got)
	}
	if !got.ExitTime.Equal(entry.Add(time.Hour)) {
		t.Errorf("exit time = %v", got.ExitTime)
	}
}

func TestStore_BalanceUpsert(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveBalance("acct", "USDT", 10000); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveBalance("acct", "USDT", 9900); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.SaveBalance("acct", "BTC", 0.5); err != nil {
		t.Fatalf("second currency: %v", err)
	}

	balances, err := s.Balances("acct")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if balances["USDT"] != 9900 || balances["BTC"] != 0.5 {
		t.Errorf("balances = %v", balances)
	}
}
