package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"papertrader/internal/event"
	"papertrader/internal/model"
)

func testConfig() Config {
	return Config{StopLossPct: 0.02, TakeProfitPct: 0.04, FeeRate: 0}
}

func fill(account, symbol string, side model.Side, qty float64) *model.Order {
	return &model.Order{
		ID:        "ord-" + string(side),
		Account:   account,
		Symbol:    symbol,
		Side:      side,
		Type:      model.OrderMarket,
		Qty:       qty,
		FilledQty: qty,
		Status:    model.StatusFilled,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyFill_WeightedAverageEntry(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	if err := l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 100); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if err := l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 200); err != nil {
		t.Fatalf("second fill: %v", err)
	}

	pos, ok := l.OpenPosition("acct", "BTC/USDT")
	if !ok {
		t.Fatal("expected open position")
	}
	if !almostEqual(pos.Qty, 2) {
		t.Errorf("qty = %v, want 2", pos.Qty)
	}
	if !almostEqual(pos.EntryPrice, 150) {
		t.Errorf("entry = %v, want 150 (volume-weighted)", pos.EntryPrice)
	}
	if got := l.Balance("acct", "USDT"); !almostEqual(got, 10000-100-200) {
		t.Errorf("balance = %v, want 9700", got)
	}
}

func TestApplyFill_OppositeSideFlipsViaCloseAndOpen(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	if err := l.ApplyFill(fill("acct", "ETH/USDT", model.SideBuy, 2), 100); err != nil {
		t.Fatalf("open long: %v", err)
	}
	// Sell 3 against a long 2: close the long, realize its pnl, open a
	// residual short of 1. Never a netted -1 on the same position record.
	if err := l.ApplyFill(fill("acct", "ETH/USDT", model.SideSell, 3), 120); err != nil {
		t.Fatalf("flip sell: %v", err)
	}

	if got := l.RealizedPnL("acct"); !almostEqual(got, 40) {
		t.Errorf("realized = %v, want 40", got)
	}

	pos, ok := l.OpenPosition("acct", "ETH/USDT")
	if !ok {
		t.Fatal("expected residual short position")
	}
	if pos.Side != model.PositionShort {
		t.Errorf("side = %s, want short", pos.Side)
	}
	if !almostEqual(pos.Qty, 1) || !almostEqual(pos.EntryPrice, 120) {
		t.Errorf("residual = %v @ %v, want 1 @ 120", pos.Qty, pos.EntryPrice)
	}

	closed := l.ClosedPositions("acct")
	if len(closed) != 1 {
		t.Fatalf("closed count = %d, want 1", len(closed))
	}
	if closed[0].ExitReason != model.ExitFlip {
		t.Errorf("exit reason = %q, want %q", closed[0].ExitReason, model.ExitFlip)
	}

	// 10000 - 200 (buy 2@100) + 360 (sell 3@120)
	if got := l.Balance("acct", "USDT"); !almostEqual(got, 10160) {
		t.Errorf("balance = %v, want 10160", got)
	}
}

func TestApplyFill_PartialReduceKeepsEntryPrice(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 4), 100)
	if err := l.ApplyFill(fill("acct", "BTC/USDT", model.SideSell, 1), 110); err != nil {
		t.Fatalf("reduce: %v", err)
	}

	pos, ok := l.OpenPosition("acct", "BTC/USDT")
	if !ok {
		t.Fatal("expected position still open")
	}
	if !almostEqual(pos.Qty, 3) {
		t.Errorf("qty = %v, want 3", pos.Qty)
	}
	if !almostEqual(pos.EntryPrice, 100) {
		t.Errorf("entry = %v, want 100 (unchanged on reduce)", pos.EntryPrice)
	}
	if got := l.RealizedPnL("acct"); !almostEqual(got, 10) {
		t.Errorf("realized = %v, want 10", got)
	}
}

func TestApplyFill_InsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 50)

	err := l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 100)
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if got := l.Balance("acct", "USDT"); !almostEqual(got, 50) {
		t.Errorf("balance mutated on rejected fill: %v", got)
	}
	if _, ok := l.OpenPosition("acct", "BTC/USDT"); ok {
		t.Error("position opened despite rejected fill")
	}
}

func TestApplyFill_FeeDebitedOnBothSides(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0.001
	l := New(cfg, nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 1000)
	// 10000 - 1000 - 1 fee
	if got := l.Balance("acct", "USDT"); !almostEqual(got, 8999) {
		t.Errorf("after buy: balance = %v, want 8999", got)
	}

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideSell, 1), 1000)
	// + 1000 - 1 fee
	if got := l.Balance("acct", "USDT"); !almostEqual(got, 9998) {
		t.Errorf("after sell: balance = %v, want 9998", got)
	}
}

func TestOnPriceTick_StopLossThreshold(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)
	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 100)

	// -1.5% is inside the stop, position stays open and stays marked.
	l.OnPriceTick("BTC/USDT", 98.5)
	pos, ok := l.OpenPosition("acct", "BTC/USDT")
	if !ok {
		t.Fatal("position closed above stop-loss threshold")
	}
	if !almostEqual(pos.CurrentPrice, 98.5) {
		t.Errorf("current price = %v, want 98.5", pos.CurrentPrice)
	}

	// -2.1% breaches the 2% stop.
	l.OnPriceTick("BTC/USDT", 97.9)
	if _, ok := l.OpenPosition("acct", "BTC/USDT"); ok {
		t.Fatal("position still open below stop-loss threshold")
	}

	closed := l.ClosedPositions("acct")
	if len(closed) != 1 {
		t.Fatalf("closed count = %d, want 1", len(closed))
	}
	if closed[0].ExitReason != model.ExitStopLoss {
		t.Errorf("exit reason = %q, want %q", closed[0].ExitReason, model.ExitStopLoss)
	}
	if !almostEqual(closed[0].ExitPrice, 97.9) {
		t.Errorf("exit price = %v, want 97.9", closed[0].ExitPrice)
	}
	if got := l.RealizedPnL("acct"); !almostEqual(got, -2.1) {
		t.Errorf("realized = %v, want -2.1", got)
	}
	// 10000 - 100 + 97.9
	if got := l.Balance("acct", "USDT"); !almostEqual(got, 9997.9) {
		t.Errorf("balance = %v, want 9997.9", got)
	}
}

func TestOnPriceTick_TakeProfitAndNotifyHook(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	var notified []model.Position
	l.OnAutoClose = func(pos model.Position) { notified = append(notified, pos) }

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 100)
	l.OnPriceTick("BTC/USDT", 104)

	closed := l.ClosedPositions("acct")
	if len(closed) != 1 || closed[0].ExitReason != model.ExitTakeProfit {
		t.Fatalf("closed = %+v, want one take-profit close", closed)
	}
	if len(notified) != 1 || notified[0].ExitReason != model.ExitTakeProfit {
		t.Errorf("OnAutoClose not invoked with closed position: %+v", notified)
	}
}

func TestOnPriceTick_ShortStopLoss(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideSell, 1), 100)
	// Short loses when price rises. +2.5% move breaches the 2% stop.
	l.OnPriceTick("BTC/USDT", 102.5)

	closed := l.ClosedPositions("acct")
	if len(closed) != 1 || closed[0].ExitReason != model.ExitStopLoss {
		t.Fatalf("closed = %+v, want one stop-loss close", closed)
	}
	if got := l.RealizedPnL("acct"); !almostEqual(got, -2.5) {
		t.Errorf("realized = %v, want -2.5", got)
	}
}

func TestClosePosition_Manual(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 2), 100)
	l.OnPriceTick("BTC/USDT", 101) // inside thresholds, just marks

	pos, err := l.ClosePosition("acct", "BTC/USDT", model.ExitManual)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if pos.ExitReason != model.ExitManual || !almostEqual(pos.ExitPrice, 101) {
		t.Errorf("closed at %v (%q), want 101 (%q)", pos.ExitPrice, pos.ExitReason, model.ExitManual)
	}
	if got := l.RealizedPnL("acct"); !almostEqual(got, 2) {
		t.Errorf("realized = %v, want 2", got)
	}

	if _, err := l.ClosePosition("acct", "BTC/USDT", model.ExitManual); err == nil {
		t.Error("expected error closing an already-closed symbol")
	}
}

func TestGetSummary(t *testing.T) {
	l := New(testConfig(), nil, nil)
	l.SetBalance("acct", "USDT", 10000)

	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 100)
	l.ApplyFill(fill("acct", "ETH/USDT", model.SideBuy, 1), 50)
	l.OnPriceTick("BTC/USDT", 101)
	l.OnPriceTick("ETH/USDT", 50.5)

	s := l.GetSummary("acct")
	if s.OpenPositions != 2 || s.ClosedTrades != 0 {
		t.Errorf("counts = %d open / %d closed, want 2/0", s.OpenPositions, s.ClosedTrades)
	}
	if !almostEqual(s.UnrealizedPnL, 1.5) {
		t.Errorf("unrealized = %v, want 1.5", s.UnrealizedPnL)
	}
	if !almostEqual(s.TotalPnL, 1.5) {
		t.Errorf("total = %v, want 1.5", s.TotalPnL)
	}
}

func TestApplyFill_PublishesEvents(t *testing.T) {
	bus := event.New(16)
	defer bus.Close()
	sub := bus.Subscribe()

	l := New(testConfig(), bus, nil)
	l.SetBalance("acct", "USDT", 10000)
	l.ApplyFill(fill("acct", "BTC/USDT", model.SideBuy, 1), 100)

	got := map[model.EventType]bool{}
	for len(got) < 2 {
		select {
		case ev := <-sub:
			got[ev.Type] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out, saw %v", got)
		}
	}
	if !got[model.EventPositionUpdate] || !got[model.EventBalanceUpdate] {
		t.Errorf("events = %v, want position_update and balance_update", got)
	}
}
