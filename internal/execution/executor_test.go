package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"papertrader/internal/event"
	"papertrader/internal/model"
)

type stubQuoter struct {
	prices map[string]float64
	err    error
}

func (s *stubQuoter) CurrentPrice(_ context.Context, symbol string) (model.PriceTick, error) {
	if s.err != nil {
		return model.PriceTick{}, s.err
	}
	return model.PriceTick{Symbol: symbol, Price: s.prices[symbol], Origin: model.OriginLive}, nil
}

type stubSettler struct {
	fills []float64
	err   error
}

func (s *stubSettler) ApplyFill(o *model.Order, price float64) error {
	if s.err != nil {
		return s.err
	}
	s.fills = append(s.fills, price)
	return nil
}

func newTestExecutor(cfg Config, prices map[string]float64) (*Executor, *stubSettler) {
	settler := &stubSettler{}
	return New(cfg, &stubQuoter{prices: prices}, settler, nil, nil), settler
}

func marketIntent(qty float64) model.OrderIntent {
	return model.OrderIntent{
		Account: "acct",
		Symbol:  "BTC/USDT",
		Side:    model.SideBuy,
		Type:    model.OrderMarket,
		Qty:     qty,
	}
}

func TestPlaceOrder_ZeroQtyRejectedWithoutOrder(t *testing.T) {
	e, _ := newTestExecutor(Config{}, map[string]float64{"BTC/USDT": 100})

	_, err := e.PlaceOrder(context.Background(), marketIntent(0))
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if got := e.Orders("acct"); len(got) != 0 {
		t.Errorf("order created despite validation failure: %+v", got)
	}
}

func TestPlaceOrder_MarketFillWithFee(t *testing.T) {
	e, settler := newTestExecutor(Config{FeeRate: 0.001}, map[string]float64{"BTC/USDT": 100})

	o, err := e.PlaceOrder(context.Background(), marketIntent(2))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != model.StatusFilled {
		t.Fatalf("status = %s, want filled", o.Status)
	}
	if o.AvgPrice != 100 || o.FilledQty != 2 {
		t.Errorf("fill = %v @ %v, want 2 @ 100", o.FilledQty, o.AvgPrice)
	}
	if o.Fee != 0.2 {
		t.Errorf("fee = %v, want 0.2 (0.1%% of 200 notional)", o.Fee)
	}
	if len(settler.fills) != 1 || settler.fills[0] != 100 {
		t.Errorf("settled fills = %v, want [100]", settler.fills)
	}
}

func TestPlaceOrder_SlippageAgainstTaker(t *testing.T) {
	e, _ := newTestExecutor(Config{SlippageBps: 10}, map[string]float64{"BTC/USDT": 100})

	buy, err := e.PlaceOrder(context.Background(), marketIntent(1))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.AvgPrice != 100.1 {
		t.Errorf("buy fill = %v, want 100.1 (10bps above quote)", buy.AvgPrice)
	}

	sellIntent := marketIntent(1)
	sellIntent.Side = model.SideSell
	sell, err := e.PlaceOrder(context.Background(), sellIntent)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if sell.AvgPrice != 99.9 {
		t.Errorf("sell fill = %v, want 99.9 (10bps below quote)", sell.AvgPrice)
	}
}

func TestPlaceOrder_MaxOrderSize(t *testing.T) {
	e, _ := newTestExecutor(Config{MaxOrderSize: 150}, map[string]float64{"BTC/USDT": 100})

	_, err := e.PlaceOrder(context.Background(), marketIntent(2))
	var lerr *model.LimitExceededError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want LimitExceededError", err)
	}
	if got := e.Orders("acct"); len(got) != 0 {
		t.Errorf("order created despite notional cap: %+v", got)
	}
}

func TestPlaceOrder_QuoterFailure(t *testing.T) {
	settler := &stubSettler{}
	e := New(Config{}, &stubQuoter{err: errors.New("timeout")}, settler, nil, nil)

	_, err := e.PlaceOrder(context.Background(), marketIntent(1))
	var ferr *model.ExternalFetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %v, want ExternalFetchError", err)
	}
}

func TestPlaceOrder_DailyCapAndRollover(t *testing.T) {
	e, _ := newTestExecutor(Config{MaxDailyOrders: 2}, map[string]float64{"BTC/USDT": 100})

	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNow(func() time.Time { return day })

	for i := 0; i < 2; i++ {
		if _, err := e.PlaceOrder(context.Background(), marketIntent(1)); err != nil {
			t.Fatalf("order %d: %v", i+1, err)
		}
	}

	_, err := e.PlaceOrder(context.Background(), marketIntent(1))
	var lerr *model.LimitExceededError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want LimitExceededError at cap", err)
	}
	if got := e.DailyOrderCount(); got != 2 {
		t.Errorf("counter = %d after rejected call, want 2", got)
	}

	// Calendar-day rollover resets the counter.
	day = day.Add(24 * time.Hour)
	if _, err := e.PlaceOrder(context.Background(), marketIntent(1)); err != nil {
		t.Fatalf("order after rollover: %v", err)
	}
	if got := e.DailyOrderCount(); got != 1 {
		t.Errorf("counter = %d after rollover, want 1", got)
	}
}

func TestCancelOrder(t *testing.T) {
	e, _ := newTestExecutor(Config{}, map[string]float64{"BTC/USDT": 100})

	// Limit buy below the market rests as pending.
	resting, err := e.PlaceOrder(context.Background(), model.OrderIntent{
		Account: "acct", Symbol: "BTC/USDT", Side: model.SideBuy,
		Type: model.OrderLimit, Qty: 1, Price: 90, TIF: model.TIFGoodTillCancel,
	})
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}
	if resting.Status != model.StatusPending {
		t.Fatalf("limit status = %s, want pending", resting.Status)
	}

	if err := e.CancelOrder(resting.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	got, _ := e.GetOrder(resting.ID)
	if got.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if n := e.RestingOrders("BTC/USDT"); n != 0 {
		t.Errorf("resting book = %d, want 0 after cancel", n)
	}
	// Second cancel of an already-cancelled order is a no-op.
	if err := e.CancelOrder(resting.ID); err != nil {
		t.Errorf("re-cancel: %v, want nil", err)
	}

	filled, err := e.PlaceOrder(context.Background(), marketIntent(1))
	if err != nil {
		t.Fatalf("place market: %v", err)
	}
	if err := e.CancelOrder(filled.ID); !errors.Is(err, model.ErrAlreadyFilled) {
		t.Errorf("cancel filled = %v, want ErrAlreadyFilled", err)
	}

	if err := e.CancelOrder("nope"); !errors.Is(err, model.ErrOrderNotFound) {
		t.Errorf("cancel unknown = %v, want ErrOrderNotFound", err)
	}
}

func TestCheckTriggers_LimitFillsAtLimitPrice(t *testing.T) {
	e, settler := newTestExecutor(Config{}, map[string]float64{"BTC/USDT": 100})

	o, err := e.PlaceOrder(context.Background(), model.OrderIntent{
		Account: "acct", Symbol: "BTC/USDT", Side: model.SideBuy,
		Type: model.OrderLimit, Qty: 1, Price: 95, TIF: model.TIFGoodTillCancel,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if n := e.CheckTriggers("BTC/USDT", 96); n != 0 {
		t.Fatalf("triggered %d orders above the limit, want 0", n)
	}
	if n := e.CheckTriggers("BTC/USDT", 94); n != 1 {
		t.Fatalf("triggered %d orders at 94, want 1", n)
	}

	got, _ := e.GetOrder(o.ID)
	if got.Status != model.StatusFilled || got.AvgPrice != 95 {
		t.Errorf("order = %s @ %v, want filled @ 95 (limit price, not tick)", got.Status, got.AvgPrice)
	}
	if len(settler.fills) != 1 || settler.fills[0] != 95 {
		t.Errorf("settled fills = %v, want [95]", settler.fills)
	}
	if n := e.RestingOrders("BTC/USDT"); n != 0 {
		t.Errorf("resting book = %d after fill, want 0", n)
	}
}

func TestCheckTriggers_StopFillsAtTickPrice(t *testing.T) {
	e, _ := newTestExecutor(Config{}, map[string]float64{"BTC/USDT": 100})

	o, err := e.PlaceOrder(context.Background(), model.OrderIntent{
		Account: "acct", Symbol: "BTC/USDT", Side: model.SideSell,
		Type: model.OrderStop, Qty: 1, StopPrice: 95, TIF: model.TIFGoodTillCancel,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != model.StatusPending {
		t.Fatalf("stop status = %s, want pending (armed, not triggered on placement)", o.Status)
	}

	if n := e.CheckTriggers("BTC/USDT", 96); n != 0 {
		t.Fatalf("sell stop triggered above stop price")
	}
	if n := e.CheckTriggers("BTC/USDT", 94.5); n != 1 {
		t.Fatalf("sell stop not triggered below stop price")
	}

	got, _ := e.GetOrder(o.ID)
	if got.Status != model.StatusFilled || got.AvgPrice != 94.5 {
		t.Errorf("order = %s @ %v, want filled @ 94.5 (triggering tick)", got.Status, got.AvgPrice)
	}
}

func TestPlaceOrder_IOCLimitCancelsWhenNotCrossable(t *testing.T) {
	e, _ := newTestExecutor(Config{}, map[string]float64{"BTC/USDT": 100})

	o, err := e.PlaceOrder(context.Background(), model.OrderIntent{
		Account: "acct", Symbol: "BTC/USDT", Side: model.SideBuy,
		Type: model.OrderLimit, Qty: 1, Price: 90, TIF: model.TIFImmediate,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != model.StatusCancelled {
		t.Errorf("IOC status = %s, want cancelled", o.Status)
	}
	if n := e.RestingOrders("BTC/USDT"); n != 0 {
		t.Errorf("IOC order left resting")
	}
}

func TestPlaceOrder_RejectedWhenSettlementFails(t *testing.T) {
	settler := &stubSettler{err: &model.ValidationError{Field: "balance", Msg: "insufficient balance"}}
	e := New(Config{}, &stubQuoter{prices: map[string]float64{"BTC/USDT": 100}}, settler, nil, nil)

	o, err := e.PlaceOrder(context.Background(), marketIntent(1))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != model.StatusRejected {
		t.Errorf("status = %s, want rejected", o.Status)
	}
	if o.FilledQty != 0 || o.Fee != 0 {
		t.Errorf("rejected order carries fill state: qty=%v fee=%v", o.FilledQty, o.Fee)
	}
}

func TestPlaceOrder_EmitsOrderUpdatesSynchronously(t *testing.T) {
	bus := event.New(16)
	defer bus.Close()
	sub := bus.Subscribe()

	settler := &stubSettler{}
	e := New(Config{}, &stubQuoter{prices: map[string]float64{"BTC/USDT": 100}}, settler, bus, nil)

	if _, err := e.PlaceOrder(context.Background(), marketIntent(1)); err != nil {
		t.Fatalf("place: %v", err)
	}

	// pending then filled, both published before PlaceOrder returned.
	var statuses []model.OrderStatus
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			o, ok := ev.Data.(model.Order)
			if !ok || ev.Type != model.EventOrderUpdate {
				t.Fatalf("unexpected event %+v", ev)
			}
			statuses = append(statuses, o.Status)
		default:
			t.Fatalf("only %d order updates buffered at return, want 2", len(statuses))
		}
	}
	if statuses[0] != model.StatusPending || statuses[1] != model.StatusFilled {
		t.Errorf("statuses = %v, want [pending filled]", statuses)
	}
}
