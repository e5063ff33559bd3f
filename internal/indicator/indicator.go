// Package indicator provides technical indicator calculations over candle
// windows.
//
// All computations are pure: the same candle window and parameters always
// produce the same Result. Indicators that need a warm-up return a
// DataInsufficiencyError instead of partial output.
package indicator

import (
	"fmt"

	"papertrader/internal/model"
)

// Indicator names accepted by Compute.
const (
	NameSMA        = "SMA"
	NameEMA        = "EMA"
	NameRSI        = "RSI"
	NameMACD       = "MACD"
	NameBollinger  = "BollingerBands"
	NameStochastic = "Stochastic"
	NameATR        = "ATR"
	NameOBV        = "OBV"
	NameVWAP       = "VWAP"
)

// Params is the parameter set for one indicator computation. Zero values are
// replaced with the indicator's documented defaults.
type Params struct {
	Period       int     `yaml:"period" json:"period"`
	FastPeriod   int     `yaml:"fast_period" json:"fast_period"`
	SlowPeriod   int     `yaml:"slow_period" json:"slow_period"`
	SignalPeriod int     `yaml:"signal_period" json:"signal_period"`
	StdDev       float64 `yaml:"std_dev" json:"std_dev"`
	KPeriod      int     `yaml:"k_period" json:"k_period"`
	DPeriod      int     `yaml:"d_period" json:"d_period"`
}

// Tag is a per-bar directional hint derived from an indicator series.
type Tag string

const (
	TagNeutral Tag = "neutral"
	TagBuy     Tag = "buy"
	TagSell    Tag = "sell"
)

// Result is one indicator's value series over a candle window.
// Values[i] aligns with candles[Offset+i]; lag-based indicators have a
// positive Offset (the warm-up). Results are replaced wholesale on window
// change, never mutated in place.
type Result struct {
	Name   string               `json:"name"`
	Params Params               `json:"params"`
	Offset int                  `json:"offset"`
	Values []float64            `json:"values"`
	Series map[string][]float64 `json:"series,omitempty"` // composite lines (signal, upper, ...)
	Tags   []Tag                `json:"tags,omitempty"`   // aligned with Values; nil if untagged
}

// Last returns the most recent primary value, or 0 for an empty series.
func (r *Result) Last() float64 {
	if len(r.Values) == 0 {
		return 0
	}
	return r.Values[len(r.Values)-1]
}

// LastSeries returns the most recent value of a composite line.
func (r *Result) LastSeries(key string) float64 {
	s := r.Series[key]
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// LastTag returns the most recent tag, or TagNeutral for untagged results.
func (r *Result) LastTag() Tag {
	if len(r.Tags) == 0 {
		return TagNeutral
	}
	return r.Tags[len(r.Tags)-1]
}

// Compute calculates a single indicator over an ordered candle window.
func Compute(name string, candles []model.Candle, p Params) (*Result, error) {
	switch name {
	case NameSMA:
		return computeSMA(candles, p)
	case NameEMA:
		return computeEMA(candles, p)
	case NameRSI:
		return computeRSI(candles, p)
	case NameMACD:
		return computeMACD(candles, p)
	case NameBollinger:
		return computeBollinger(candles, p)
	case NameStochastic:
		return computeStochastic(candles, p)
	case NameATR:
		return computeATR(candles, p)
	case NameOBV:
		return computeOBV(candles, p)
	case NameVWAP:
		return computeVWAP(candles, p)
	default:
		return nil, fmt.Errorf("unknown indicator %q", name)
	}
}

// ComputeBatch computes each requested indicator independently. A failure in
// one entry does not abort the others: failed names appear in the error map
// and are absent from the result map.
func ComputeBatch(candles []model.Candle, specs map[string]Params) (map[string]*Result, map[string]error) {
	results := make(map[string]*Result, len(specs))
	errs := make(map[string]error)
	for name, p := range specs {
		r, err := Compute(name, candles, p)
		if err != nil {
			errs[name] = err
			continue
		}
		results[name] = r
	}
	return results, errs
}

// closes extracts the close series from a candle window.
func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// insufficient builds the standard warm-up error.
func insufficient(name string, need, have int) error {
	return &model.DataInsufficiencyError{Indicator: name, Need: need, Have: have}
}
