package signal

import (
	"strings"
	"testing"
	"time"

	"papertrader/internal/event"
	"papertrader/internal/model"
)

func ramp(n int, start, step float64) []model.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	price := start
	for i := range candles {
		candles[i] = model.Candle{
			Symbol:   "BTC/USDT",
			Interval: "1m",
			TS:       base.Add(time.Duration(i) * time.Minute),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   10,
		}
		price += step
	}
	return candles
}

// emaOnly keeps a single vote source so direction tests are unambiguous.
func emaOnly(weight, threshold float64) Config {
	cfg := DefaultConfig()
	cfg.Weights = Weights{EMACrossover: weight}
	cfg.Threshold = threshold
	return cfg
}

func TestEvaluate_TrendDirection(t *testing.T) {
	g, err := New(emaOnly(0.6, 0.5), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sig, err := g.Evaluate("BTC/USDT", ramp(60, 100, 1))
	if err != nil {
		t.Fatalf("uptrend: %v", err)
	}
	if sig.Action != model.ActionBuy || sig.Confidence != 0.6 {
		t.Errorf("uptrend signal = %s conf %.2f, want BUY 0.60", sig.Action, sig.Confidence)
	}
	if sig.Reason != "EMA(20) above EMA(50)" {
		t.Errorf("reason = %q", sig.Reason)
	}
	if sig.Price != 159 {
		t.Errorf("price = %v, want last close 159", sig.Price)
	}

	sig, err = g.Evaluate("BTC/USDT", ramp(60, 200, -1))
	if err != nil {
		t.Fatalf("downtrend: %v", err)
	}
	if sig.Action != model.ActionSell || sig.Confidence != 0.6 {
		t.Errorf("downtrend signal = %s conf %.2f, want SELL 0.60", sig.Action, sig.Confidence)
	}
}

func TestEvaluate_WeightedAggregation(t *testing.T) {
	// Steady uptrend: EMA crossover and MACD vote BUY, RSI pegs overbought
	// and votes SELL. BUY 0.50 beats SELL 0.25 and clears the 0.45 threshold;
	// confidence is the winning side's total weight.
	cfg := DefaultConfig()
	cfg.Weights = Weights{EMACrossover: 0.30, RSIExtreme: 0.25, MACDSign: 0.20}
	cfg.Threshold = 0.45

	g, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sig, err := g.Evaluate("BTC/USDT", ramp(60, 100, 1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Action != model.ActionBuy {
		t.Fatalf("action = %s, want BUY", sig.Action)
	}
	if sig.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5 (0.30 + 0.20)", sig.Confidence)
	}
	// Contributing reasons concatenate in evaluation order: EMA before MACD,
	// and the losing RSI vote is excluded.
	if sig.Reason != "EMA(20) above EMA(50); MACD positive" {
		t.Errorf("reason = %q", sig.Reason)
	}
	if sig.Indicators["rsi"] <= 70 {
		t.Errorf("rsi snapshot = %v, want overbought", sig.Indicators["rsi"])
	}
}

func TestEvaluate_HoldBelowThreshold(t *testing.T) {
	g, err := New(emaOnly(0.3, 0.5), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sig, err := g.Evaluate("BTC/USDT", ramp(60, 100, 1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Action != model.ActionHold || sig.Confidence != 0 {
		t.Errorf("signal = %s conf %v, want HOLD 0", sig.Action, sig.Confidence)
	}
	if sig.Reason != "no consensus" {
		t.Errorf("reason = %q", sig.Reason)
	}
}

func TestEvaluate_SkipsBelowWarmup(t *testing.T) {
	g, err := New(emaOnly(0.6, 0.5), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sig, err := g.Evaluate("BTC/USDT", ramp(49, 100, 1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig != nil {
		t.Errorf("signal emitted below warm-up: %+v", sig)
	}
	if len(g.History()) != 0 {
		t.Error("history recorded a skipped evaluation")
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	g, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g.SetNow(func() time.Time { return ts })

	window := ramp(60, 100, 1)
	a, err := g.Evaluate("BTC/USDT", window)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := g.Evaluate("BTC/USDT", window)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if a.Action != b.Action || a.Confidence != b.Confidence || a.Reason != b.Reason {
		t.Errorf("replayed window diverged: %+v vs %+v", a, b)
	}
	for name, v := range a.Indicators {
		if b.Indicators[name] != v {
			t.Errorf("indicator %s diverged: %v vs %v", name, v, b.Indicators[name])
		}
	}
}

func TestEvaluate_SnapshotsEveryIndicator(t *testing.T) {
	// All five weights enabled: every configured indicator must resolve and
	// land in the snapshot.
	g, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sig, err := g.Evaluate("BTC/USDT", ramp(60, 100, 1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, key := range []string{"ema_fast", "ema_slow", "rsi", "macd", "bb_upper", "bb_lower", "stoch_k"} {
		if _, ok := sig.Indicators[key]; !ok {
			t.Errorf("snapshot missing %q: %v", key, sig.Indicators)
		}
	}
}

func TestEvaluate_SingleFlightPerSymbol(t *testing.T) {
	g, err := New(emaOnly(0.6, 0.5), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Simulate an in-flight evaluation for the symbol.
	g.symbolGuard("BTC/USDT").Lock()
	defer g.symbolGuard("BTC/USDT").Unlock()

	sig, err := g.Evaluate("BTC/USDT", ramp(60, 100, 1))
	if err != nil || sig != nil {
		t.Errorf("overlapping evaluation = %+v, %v; want skipped", sig, err)
	}

	// Other symbols are unaffected.
	sig, err = g.Evaluate("ETH/USDT", ramp(60, 100, 1))
	if err != nil || sig == nil {
		t.Errorf("independent symbol blocked: %+v, %v", sig, err)
	}
}

func TestHistory_Bounded(t *testing.T) {
	cfg := emaOnly(0.6, 0.5)
	cfg.HistorySize = 5
	g, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 7; i++ {
		if _, err := g.Evaluate("BTC/USDT", ramp(60, 100+float64(i), 1)); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}
	hist := g.History()
	if len(hist) != 5 {
		t.Fatalf("history len = %d, want 5", len(hist))
	}
	// Oldest evaluations were dropped; the survivors are the last five.
	if !strings.HasPrefix(hist[0].Reason, "EMA") {
		t.Errorf("unexpected history entry: %+v", hist[0])
	}
	if hist[4].Price != 159+6 {
		t.Errorf("newest price = %v, want 165", hist[4].Price)
	}
}

func TestEvaluate_PublishesSignalEvent(t *testing.T) {
	bus := event.New(8)
	defer bus.Close()
	sub := bus.Subscribe()

	g, err := New(emaOnly(0.6, 0.5), bus)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := g.Evaluate("BTC/USDT", ramp(60, 100, 1)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	select {
	case ev := <-sub:
		if ev.Type != model.EventSignal {
			t.Errorf("event type = %s, want signal", ev.Type)
		}
		if _, ok := ev.Data.(model.StrategySignal); !ok {
			t.Errorf("event payload = %T", ev.Data)
		}
	default:
		t.Fatal("no signal event buffered at return")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.EMACrossover = 0.9 // sum now exceeds 1
	if _, err := New(cfg, nil); err == nil {
		t.Error("weights summing above 1 accepted")
	}

	cfg = DefaultConfig()
	cfg.Warmup = 30 // below the slow EMA
	if _, err := New(cfg, nil); err == nil {
		t.Error("warm-up below slowest indicator accepted")
	}

	cfg = DefaultConfig()
	cfg.EMAFast, cfg.EMASlow = 50, 20
	if _, err := New(cfg, nil); err == nil {
		t.Error("inverted EMA periods accepted")
	}
}
