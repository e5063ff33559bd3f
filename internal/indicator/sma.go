package indicator

import "papertrader/internal/model"

const defaultSMAPeriod = 20

// computeSMA produces a simple moving average of closes with a rolling sum.
// Tags mark close-vs-SMA crossings on the crossing bar only; the first output
// bar is neutral because there is no prior bar to detect a crossing against.
func computeSMA(candles []model.Candle, p Params) (*Result, error) {
	period := p.Period
	if period <= 0 {
		period = defaultSMAPeriod
	}
	n := len(candles)
	if n < period {
		return nil, insufficient(NameSMA, period, n)
	}

	cls := closes(candles)
	values := rollingMean(cls, period)

	offset := period - 1
	tags := make([]Tag, len(values))
	tags[0] = TagNeutral
	for i := 1; i < len(values); i++ {
		prevClose, curClose := cls[offset+i-1], cls[offset+i]
		prevMA, curMA := values[i-1], values[i]
		switch {
		case prevClose <= prevMA && curClose > curMA:
			tags[i] = TagBuy
		case prevClose >= prevMA && curClose < curMA:
			tags[i] = TagSell
		default:
			tags[i] = TagNeutral
		}
	}

	p.Period = period
	return &Result{
		Name:   NameSMA,
		Params: p,
		Offset: offset,
		Values: values,
		Tags:   tags,
	}, nil
}

// rollingMean computes the window mean of xs for each full window.
// Output length is len(xs)-period+1.
func rollingMean(xs []float64, period int) []float64 {
	out := make([]float64, 0, len(xs)-period+1)
	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}
