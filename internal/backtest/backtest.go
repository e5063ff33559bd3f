// Package backtest replays historical candles through the signal generator
// and a simplified long-only fill model, producing the usual performance
// summary: return, Sharpe ratio, max drawdown, win rate, profit factor, and
// the equity curve.
package backtest

import (
	"math"
	"time"

	"papertrader/internal/model"
	"papertrader/internal/signal"
)

// Config holds the backtest parameters.
type Config struct {
	InitialCapital float64       // starting cash in quote currency
	Commission     float64       // fraction of notional per fill, e.g. 0.001
	RiskPct        float64       // fraction of equity risked per trade
	StopLossPct    float64       // close when price falls this fraction below entry
	TakeProfitPct  float64       // close when price rises this fraction above entry
	Strategy       signal.Config // signal generator parameters
}

// DefaultConfig mirrors the live engine's defaults.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10000,
		Commission:     0.001,
		RiskPct:        0.02,
		StopLossPct:    0.02,
		TakeProfitPct:  0.04,
		Strategy:       signal.DefaultConfig(),
	}
}

// Trade is one completed round trip.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Qty        float64   `json:"qty"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"` // net of commissions
	ExitReason string    `json:"exit_reason"`
}

// Result is the backtest summary.
type Result struct {
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturnPct float64   `json:"total_return_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	WinRate        float64   `json:"win_rate"` // percent of trades with positive pnl
	ProfitFactor   float64   `json:"profit_factor"`
	AvgWin         float64   `json:"avg_win"`
	AvgLoss        float64   `json:"avg_loss"` // negative or zero
	LargestWin     float64   `json:"largest_win"`
	LargestLoss    float64   `json:"largest_loss"` // negative or zero
	Trades         []Trade   `json:"trades"`
	EquityCurve    []float64 `json:"equity_curve"` // one point per evaluated bar
}

type openTrade struct {
	qty        float64
	entryPrice float64
	entryTime  time.Time
	entryFee   float64
}

// Run replays candles (oldest first) through the strategy and returns the
// performance summary. Candles before the strategy warm-up only seed
// indicators and are never traded on.
func Run(cfg Config, candles []model.Candle) (*Result, error) {
	gen, err := signal.New(cfg.Strategy, nil)
	if err != nil {
		return nil, err
	}
	if cfg.InitialCapital <= 0 {
		return nil, &model.ValidationError{Field: "initial_capital", Msg: "initial capital must be positive"}
	}

	cash := cfg.InitialCapital
	var pos *openTrade
	var trades []Trade
	var curve []float64

	closePos := func(c model.Candle, reason string) {
		notional := pos.qty * c.Close
		exitFee := notional * cfg.Commission
		cash += notional - exitFee
		pnl := (c.Close-pos.entryPrice)*pos.qty - pos.entryFee - exitFee
		trades = append(trades, Trade{
			Symbol:     c.Symbol,
			Qty:        pos.qty,
			EntryTime:  pos.entryTime,
			ExitTime:   c.TS,
			EntryPrice: pos.entryPrice,
			ExitPrice:  c.Close,
			PnL:        pnl,
			ExitReason: reason,
		})
		pos = nil
	}

	for i := cfg.Strategy.Warmup; i <= len(candles); i++ {
		window := candles[:i]
		bar := window[len(window)-1]

		// Protective exits are checked before the strategy speaks, like the
		// live ledger does on every tick.
		if pos != nil {
			change := (bar.Close - pos.entryPrice) / pos.entryPrice
			switch {
			case cfg.StopLossPct > 0 && change <= -cfg.StopLossPct:
				closePos(bar, model.ExitStopLoss)
			case cfg.TakeProfitPct > 0 && change >= cfg.TakeProfitPct:
				closePos(bar, model.ExitTakeProfit)
			}
		}

		sig, err := gen.Evaluate(bar.Symbol, window)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			switch {
			case sig.Action == model.ActionBuy && pos == nil:
				equity := cash
				riskQty := equity * cfg.RiskPct / (bar.Close * cfg.StopLossPct)
				maxQty := equity / (bar.Close * (1 + cfg.Commission))
				qty := math.Min(riskQty, maxQty)
				if qty > 0 {
					fee := qty * bar.Close * cfg.Commission
					cash -= qty*bar.Close + fee
					pos = &openTrade{qty: qty, entryPrice: bar.Close, entryTime: bar.TS, entryFee: fee}
				}
			case sig.Action == model.ActionSell && pos != nil:
				closePos(bar, model.ExitFlip)
			}
		}

		equity := cash
		if pos != nil {
			equity += pos.qty * bar.Close
		}
		curve = append(curve, equity)
	}

	// Close any position left open at the last bar so the summary reflects
	// every entry.
	if pos != nil && len(candles) > 0 {
		closePos(candles[len(candles)-1], model.ExitManual)
		curve[len(curve)-1] = cash
	}

	return summarize(cfg, trades, curve), nil
}

func summarize(cfg Config, trades []Trade, curve []float64) *Result {
	res := &Result{
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cfg.InitialCapital,
		Trades:         trades,
		EquityCurve:    curve,
	}
	if len(curve) > 0 {
		res.FinalEquity = curve[len(curve)-1]
	}
	res.TotalReturnPct = (res.FinalEquity - cfg.InitialCapital) / cfg.InitialCapital * 100
	res.SharpeRatio = sharpe(curve)
	res.MaxDrawdownPct = maxDrawdown(curve)

	var wins, losses int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
			if t.PnL > res.LargestWin {
				res.LargestWin = t.PnL
			}
		} else {
			losses++
			grossLoss += -t.PnL
			if t.PnL < res.LargestLoss {
				res.LargestLoss = t.PnL
			}
		}
	}
	if len(trades) > 0 {
		res.WinRate = float64(wins) / float64(len(trades)) * 100
	}
	if wins > 0 {
		res.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		res.AvgLoss = -grossLoss / float64(losses)
	}
	if grossLoss > 0 {
		res.ProfitFactor = grossProfit / grossLoss
	} else {
		// No losing trades; report gross profit rather than infinity.
		res.ProfitFactor = grossProfit
	}
	return res
}

// sharpe computes the annualized Sharpe ratio of per-bar equity returns,
// assuming daily bars and a zero risk-free rate.
func sharpe(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] != 0 {
			returns = append(returns, (curve[i]-curve[i-1])/curve[i-1])
		}
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// maxDrawdown returns the largest peak-to-trough equity decline in percent.
func maxDrawdown(curve []float64) float64 {
	var peak, maxDD float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
