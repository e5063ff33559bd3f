package indicator

import "papertrader/internal/model"

const defaultEMAPeriod = 20

// computeEMA produces an exponential moving average seeded with the SMA of
// the first period closes, the same seeding the streaming engines in this
// codebase's lineage use. Tags mark close-vs-EMA crossings on the crossing
// bar only.
func computeEMA(candles []model.Candle, p Params) (*Result, error) {
	period := p.Period
	if period <= 0 {
		period = defaultEMAPeriod
	}
	n := len(candles)
	if n < period {
		return nil, insufficient(NameEMA, period, n)
	}

	cls := closes(candles)
	values := emaSeries(cls, period)

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
		Name:   NameEMA,
		Params: p,
		Offset: offset,
		Values: values,
		Tags:   tags,
	}, nil
}

// emaSeries computes an SMA-seeded EMA. Output length is len(xs)-period+1;
// the first output value is the seed SMA.
func emaSeries(xs []float64, period int) []float64 {
	out := make([]float64, 0, len(xs)-period+1)
	mult := 2.0 / float64(period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += xs[i]
	}
	cur := seed / float64(period)
	out = append(out, cur)

	for i := period; i < len(xs); i++ {
		cur = xs[i]*mult + cur*(1-mult)
		out = append(out, cur)
	}
	return out
}
