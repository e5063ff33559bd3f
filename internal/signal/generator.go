// Package signal turns indicator snapshots into weighted trade signals.
//
// Each configured indicator casts a directional vote with its configured
// weight. Votes are summed per direction; the generator emits BUY or SELL
// only when one side's total strictly beats the other and clears the
// activation threshold, otherwise HOLD. Evaluation is deterministic: the same
// candle window always produces the same signal.
package signal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"papertrader/internal/event"
	"papertrader/internal/indicator"
	"papertrader/internal/model"
)

// Weights assigns a vote weight to each indicator condition. A zero weight
// disables the indicator. The sum must not exceed 1.
type Weights struct {
	EMACrossover   float64 `yaml:"ema_crossover" json:"ema_crossover"`
	RSIExtreme     float64 `yaml:"rsi_extreme" json:"rsi_extreme"`
	MACDSign       float64 `yaml:"macd_sign" json:"macd_sign"`
	BollingerTouch float64 `yaml:"bollinger_touch" json:"bollinger_touch"`
	StochExtreme   float64 `yaml:"stochastic_extreme" json:"stochastic_extreme"`
}

// Sum returns the total weight across all indicators.
func (w Weights) Sum() float64 {
	return w.EMACrossover + w.RSIExtreme + w.MACDSign + w.BollingerTouch + w.StochExtreme
}

// Config holds the generator's strategy parameters.
type Config struct {
	Weights   Weights `yaml:"weights"`
	Threshold float64 `yaml:"threshold"` // activation threshold for the winning side
	Warmup    int     `yaml:"warmup"`    // minimum candles before evaluating at all

	EMAFast       int     `yaml:"ema_fast"`
	EMASlow       int     `yaml:"ema_slow"`
	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`

	HistorySize int `yaml:"history_size"`
}

// DefaultConfig mirrors the documented strategy defaults.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			EMACrossover:   0.30,
			RSIExtreme:     0.25,
			MACDSign:       0.20,
			BollingerTouch: 0.15,
			StochExtreme:   0.10,
		},
		Threshold:     0.5,
		Warmup:        50,
		EMAFast:       20,
		EMASlow:       50,
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,
		HistorySize:   100,
	}
}

// Validate checks the configured parameters.
func (c Config) Validate() error {
	if c.Weights.Sum() > 1 {
		return &model.ValidationError{Field: "weights", Msg: "indicator weights must sum to at most 1"}
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return &model.ValidationError{Field: "threshold", Msg: "threshold must be in (0, 1]"}
	}
	if c.EMAFast <= 0 || c.EMASlow <= 0 || c.EMAFast >= c.EMASlow {
		return &model.ValidationError{Field: "ema", Msg: "ema_fast must be positive and less than ema_slow"}
	}
	if c.Warmup < c.EMASlow {
		return &model.ValidationError{Field: "warmup", Msg: "warmup must cover the slowest indicator"}
	}
	return nil
}

// Generator evaluates candle windows into strategy signals. Evaluations for
// one symbol are single-flight: the periodic cadence and the candle-close
// trigger race, and the loser is skipped rather than queued.
type Generator struct {
	cfg Config
	bus *event.Bus

	mu       sync.Mutex
	history  []model.StrategySignal
	inFlight map[string]*sync.Mutex

	now func() time.Time
}

// New creates a Generator with a validated config. bus may be nil.
func New(cfg Config, bus *event.Bus) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &Generator{
		cfg:      cfg,
		bus:      bus,
		inFlight: make(map[string]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetNow overrides the clock (tests only).
func (g *Generator) SetNow(now func() time.Time) { g.now = now }

type vote struct {
	action model.Action
	weight float64
	reason string
}

// Evaluate computes a signal for symbol from candles. It returns (nil, nil)
// when the window is below warm-up or when another evaluation for the same
// symbol is already in flight.
func (g *Generator) Evaluate(symbol string, candles []model.Candle) (*model.StrategySignal, error) {
	if len(candles) < g.cfg.Warmup {
		return nil, nil
	}

	guard := g.symbolGuard(symbol)
	if !guard.TryLock() {
		return nil, nil
	}
	defer guard.Unlock()

	votes, snapshot, err := g.collectVotes(candles)
	if err != nil {
		return nil, err
	}

	var buyWeight, sellWeight float64
	for _, v := range votes {
		switch v.action {
		case model.ActionBuy:
			buyWeight += v.weight
		case model.ActionSell:
			sellWeight += v.weight
		}
	}

	action := model.ActionHold
	confidence := 0.0
	switch {
	case buyWeight > sellWeight && buyWeight > g.cfg.Threshold:
		action = model.ActionBuy
		confidence = buyWeight
	case sellWeight > buyWeight && sellWeight > g.cfg.Threshold:
		action = model.ActionSell
		confidence = sellWeight
	}

	reason := "no consensus"
	if action != model.ActionHold {
		reason = joinContributing(votes, action)
	}

	sig := model.StrategySignal{
		ID:         uuid.NewString(),
		TS:         g.now(),
		Symbol:     symbol,
		Action:     action,
		Price:      candles[len(candles)-1].Close,
		Confidence: confidence,
		Reason:     reason,
		Indicators: snapshot,
	}

	g.appendHistory(sig)
	if g.bus != nil {
		g.bus.Publish(model.Event{Type: model.EventSignal, Data: sig})
	}
	return &sig, nil
}

// collectVotes runs the configured indicators over candles and gathers their
// directional votes in a fixed order, so reasons concatenate
// deterministically.
func (g *Generator) collectVotes(candles []model.Candle) ([]vote, map[string]float64, error) {
	votes := make([]vote, 0, 5)
	snapshot := make(map[string]float64)

	// EMA crossover state: fast above slow is bullish.
	if g.cfg.Weights.EMACrossover > 0 {
		fast, err := indicator.Compute(indicator.NameEMA, candles, indicator.Params{Period: g.cfg.EMAFast})
		if err != nil {
			return nil, nil, err
		}
		slow, err := indicator.Compute(indicator.NameEMA, candles, indicator.Params{Period: g.cfg.EMASlow})
		if err != nil {
			return nil, nil, err
		}
		f, s := fast.Last(), slow.Last()
		snapshot["ema_fast"] = f
		snapshot["ema_slow"] = s
		if f > s {
			votes = append(votes, vote{model.ActionBuy, g.cfg.Weights.EMACrossover,
				fmt.Sprintf("EMA(%d) above EMA(%d)", g.cfg.EMAFast, g.cfg.EMASlow)})
		} else if f < s {
			votes = append(votes, vote{model.ActionSell, g.cfg.Weights.EMACrossover,
				fmt.Sprintf("EMA(%d) below EMA(%d)", g.cfg.EMAFast, g.cfg.EMASlow)})
		}
	}

	if g.cfg.Weights.RSIExtreme > 0 {
		rsi, err := indicator.Compute(indicator.NameRSI, candles, indicator.Params{Period: g.cfg.RSIPeriod})
		if err != nil {
			return nil, nil, err
		}
		v := rsi.Last()
		snapshot["rsi"] = v
		if v < g.cfg.RSIOversold {
			votes = append(votes, vote{model.ActionBuy, g.cfg.Weights.RSIExtreme,
				fmt.Sprintf("RSI %.1f oversold", v)})
		} else if v > g.cfg.RSIOverbought {
			votes = append(votes, vote{model.ActionSell, g.cfg.Weights.RSIExtreme,
				fmt.Sprintf("RSI %.1f overbought", v)})
		}
	}

	if g.cfg.Weights.MACDSign > 0 {
		macd, err := indicator.Compute(indicator.NameMACD, candles, indicator.Params{})
		if err != nil {
			return nil, nil, err
		}
		v := macd.Last()
		snapshot["macd"] = v
		if v > 0 {
			votes = append(votes, vote{model.ActionBuy, g.cfg.Weights.MACDSign, "MACD positive"})
		} else if v < 0 {
			votes = append(votes, vote{model.ActionSell, g.cfg.Weights.MACDSign, "MACD negative"})
		}
	}

	if g.cfg.Weights.BollingerTouch > 0 {
		bb, err := indicator.Compute(indicator.NameBollinger, candles, indicator.Params{})
		if err != nil {
			return nil, nil, err
		}
		snapshot["bb_upper"] = bb.LastSeries("upper")
		snapshot["bb_lower"] = bb.LastSeries("lower")
		switch bb.LastTag() {
		case indicator.TagBuy:
			votes = append(votes, vote{model.ActionBuy, g.cfg.Weights.BollingerTouch, "price at lower Bollinger band"})
		case indicator.TagSell:
			votes = append(votes, vote{model.ActionSell, g.cfg.Weights.BollingerTouch, "price at upper Bollinger band"})
		}
	}

	if g.cfg.Weights.StochExtreme > 0 {
		stoch, err := indicator.Compute(indicator.NameStochastic, candles, indicator.Params{})
		if err != nil {
			return nil, nil, err
		}
		k := stoch.Last()
		snapshot["stoch_k"] = k
		switch stoch.LastTag() {
		case indicator.TagBuy:
			votes = append(votes, vote{model.ActionBuy, g.cfg.Weights.StochExtreme,
				fmt.Sprintf("stochastic %%K %.1f oversold", k)})
		case indicator.TagSell:
			votes = append(votes, vote{model.ActionSell, g.cfg.Weights.StochExtreme,
				fmt.Sprintf("stochastic %%K %.1f overbought", k)})
		}
	}

	return votes, snapshot, nil
}

// joinContributing concatenates the reasons of the votes on the winning side,
// in evaluation order.
func joinContributing(votes []vote, winner model.Action) string {
	out := ""
	for _, v := range votes {
		if v.action != winner {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += v.reason
	}
	return out
}

// History returns the retained signals, oldest first.
func (g *Generator) History() []model.StrategySignal {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.StrategySignal, len(g.history))
	copy(out, g.history)
	return out
}

func (g *Generator) appendHistory(sig model.StrategySignal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history, sig)
	if len(g.history) > g.cfg.HistorySize {
		g.history = g.history[len(g.history)-g.cfg.HistorySize:]
	}
}

func (g *Generator) symbolGuard(symbol string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.inFlight[symbol]
	if !ok {
		m = &sync.Mutex{}
		g.inFlight[symbol] = m
	}
	return m
}
