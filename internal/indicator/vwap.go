package indicator

import "papertrader/internal/model"

// computeVWAP produces the cumulative volume-weighted average price over the
// window, using the typical price (H+L+C)/3 per bar. Bars with zero
// cumulative volume fall back to the typical price itself.
func computeVWAP(candles []model.Candle, p Params) (*Result, error) {
	n := len(candles)
	if n < 1 {
		return nil, insufficient(NameVWAP, 1, n)
	}

	values := make([]float64, n)
	var cumPV, cumVol float64
	for i, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3.0
		cumPV += typical * c.Volume
		cumVol += c.Volume
		if cumVol > 0 {
			values[i] = cumPV / cumVol
		} else {
			values[i] = typical
		}
	}

	return &Result{
		Name:   NameVWAP,
		Params: p,
		Offset: 0,
		Values: values,
	}, nil
}
