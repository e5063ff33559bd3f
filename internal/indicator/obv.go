package indicator

import "papertrader/internal/model"

// computeOBV produces On-Balance Volume: a running volume total that adds on
// up-closes and subtracts on down-closes. Needs at least two candles for one
// delta. OBV carries no directional tags.
func computeOBV(candles []model.Candle, p Params) (*Result, error) {
	n := len(candles)
	if n < 2 {
		return nil, insufficient(NameOBV, 2, n)
	}

	values := make([]float64, n)
	values[0] = 0
	for i := 1; i < n; i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			values[i] = values[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			values[i] = values[i-1] - candles[i].Volume
		default:
			values[i] = values[i-1]
		}
	}

	return &Result{
		Name:   NameOBV,
		Params: p,
		Offset: 0,
		Values: values,
	}, nil
}
