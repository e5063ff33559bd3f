// Package risk converts account balance and risk configuration into trade
// quantities and protective price levels.
package risk

import "papertrader/internal/model"

// Bounds enforced on risk inputs. Out-of-range values are rejected with a
// validation error, never silently clamped.
const (
	MaxRiskPct = 0.05 // riskPct ∈ (0, 0.05]
)

// Limits is the validated risk configuration for one account.
type Limits struct {
	RiskPct        float64 `yaml:"risk_pct" json:"risk_pct"`                 // fraction of balance risked per trade
	StopLossPct    float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`       // fraction, e.g. 0.02
	TakeProfitPct  float64 `yaml:"take_profit_pct" json:"take_profit_pct"`   // fraction, e.g. 0.04
	FeeRate        float64 `yaml:"fee_rate" json:"fee_rate"`                 // fraction of notional, e.g. 0.001
	MaxOrderSize   float64 `yaml:"max_order_size" json:"max_order_size"`     // max notional per order, quote currency
	MaxDailyOrders int     `yaml:"max_daily_orders" json:"max_daily_orders"` // daily order cap per account
}

// DefaultLimits returns the documented defaults: 2% risk, 2% stop, 4% take
// profit, 0.1% fee, 50k notional cap, 100 orders/day.
func DefaultLimits() Limits {
	return Limits{
		RiskPct:        0.02,
		StopLossPct:    0.02,
		TakeProfitPct:  0.04,
		FeeRate:        0.001,
		MaxOrderSize:   50000,
		MaxDailyOrders: 100,
	}
}

// Validate checks the configured limits against the documented bounds.
func (l Limits) Validate() error {
	if l.RiskPct <= 0 || l.RiskPct > MaxRiskPct {
		return &model.ValidationError{Field: "risk_pct", Msg: "must be in (0, 0.05]"}
	}
	if l.StopLossPct <= 0 || l.StopLossPct >= 1 {
		return &model.ValidationError{Field: "stop_loss_pct", Msg: "must be in (0, 1)"}
	}
	if l.TakeProfitPct <= 0 {
		return &model.ValidationError{Field: "take_profit_pct", Msg: "must be positive"}
	}
	if l.FeeRate < 0 {
		return &model.ValidationError{Field: "fee_rate", Msg: "must not be negative"}
	}
	if l.MaxOrderSize <= 0 {
		return &model.ValidationError{Field: "max_order_size", Msg: "must be positive"}
	}
	if l.MaxDailyOrders <= 0 {
		return &model.ValidationError{Field: "max_daily_orders", Msg: "must be positive"}
	}
	return nil
}

// Size converts a risk fraction of the account balance into a trade quantity:
//
//	qty = (balance × riskPct) / (entryPrice × stopLossPct)
//
// so that a stop-loss exit loses approximately balance × riskPct.
func Size(balance, riskPct, entryPrice, stopLossPct float64) (float64, error) {
	if balance <= 0 {
		return 0, &model.ValidationError{Field: "balance", Msg: "must be positive"}
	}
	if riskPct <= 0 || riskPct > MaxRiskPct {
		return 0, &model.ValidationError{Field: "risk_pct", Msg: "must be in (0, 0.05]"}
	}
	if entryPrice <= 0 {
		return 0, &model.ValidationError{Field: "entry_price", Msg: "must be positive"}
	}
	if stopLossPct <= 0 || stopLossPct >= 1 {
		return 0, &model.ValidationError{Field: "stop_loss_pct", Msg: "must be in (0, 1)"}
	}
	return (balance * riskPct) / (entryPrice * stopLossPct), nil
}

// Levels returns the stop-loss and take-profit absolute prices for a position
// entered at entry: stop below entry for longs and above for shorts, take
// profit the inverse.
func Levels(entry float64, side model.PositionSide, stopLossPct, takeProfitPct float64) (stop, take float64) {
	if side == model.PositionLong {
		return entry * (1 - stopLossPct), entry * (1 + takeProfitPct)
	}
	return entry * (1 + stopLossPct), entry * (1 - takeProfitPct)
}
