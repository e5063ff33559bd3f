package indicator

import (
	"math"

	"papertrader/internal/model"
)

const defaultATRPeriod = 14

// computeATR produces the Average True Range using Wilder's smoothing.
// Needs period+1 candles (true range uses the previous close). ATR carries no
// directional tags.
func computeATR(candles []model.Candle, p Params) (*Result, error) {
	period := p.Period
	if period <= 0 {
		period = defaultATRPeriod
	}
	n := len(candles)
	if n < period+1 {
		return nil, insufficient(NameATR, period+1, n)
	}

	// True range series, aligned at candle index 1.
	trs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - candles[i-1].Close)
		lc := math.Abs(candles[i].Low - candles[i-1].Close)
		trs[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += trs[i]
	}
	cur := seed / float64(period)

	values := make([]float64, 0, len(trs)-period+1)
	values = append(values, cur)
	pf := float64(period)
	for i := period; i < len(trs); i++ {
		cur = (cur*(pf-1) + trs[i]) / pf
		values = append(values, cur)
	}

	p.Period = period
	return &Result{
		Name:   NameATR,
		Params: p,
		Offset: period,
		Values: values,
	}, nil
}
