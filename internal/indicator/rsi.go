package indicator

import "papertrader/internal/model"

const (
	defaultRSIPeriod     = 14
	defaultRSIOversold   = 30.0
	defaultRSIOverbought = 70.0
)

// computeRSI produces the Relative Strength Index using Wilder's smoothing.
// Needs period+1 closes (period deltas). Tags: oversold → buy, overbought →
// sell, else neutral.
func computeRSI(candles []model.Candle, p Params) (*Result, error) {
	period := p.Period
	if period <= 0 {
		period = defaultRSIPeriod
	}
	n := len(candles)
	if n < period+1 {
		return nil, insufficient(NameRSI, period+1, n)
	}

	cls := closes(candles)

	// Seed averages from the first period deltas.
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := cls[i] - cls[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	values := make([]float64, 0, n-period)
	values = append(values, rsiValue(avgGain, avgLoss))

	pf := float64(period)
	for i := period + 1; i < n; i++ {
		delta := cls[i] - cls[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(pf-1) + gain) / pf
		avgLoss = (avgLoss*(pf-1) + loss) / pf
		values = append(values, rsiValue(avgGain, avgLoss))
	}

	tags := make([]Tag, len(values))
	for i, v := range values {
		switch {
		case v < defaultRSIOversold:
			tags[i] = TagBuy
		case v > defaultRSIOverbought:
			tags[i] = TagSell
		default:
			tags[i] = TagNeutral
		}
	}

	p.Period = period
	return &Result{
		Name:   NameRSI,
		Params: p,
		Offset: period,
		Values: values,
		Tags:   tags,
	}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
