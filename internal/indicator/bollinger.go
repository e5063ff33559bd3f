package indicator

import (
	"math"

	"papertrader/internal/model"
)

const (
	defaultBollingerPeriod = 20
	defaultBollingerStdDev = 2.0
)

// computeBollinger produces the middle band (SMA) plus upper/lower bands at
// StdDev standard deviations. Tags: close at or beyond the lower band → buy,
// at or beyond the upper band → sell.
func computeBollinger(candles []model.Candle, p Params) (*Result, error) {
	period := p.Period
	if period <= 0 {
		period = defaultBollingerPeriod
	}
	dev := p.StdDev
	if dev <= 0 {
		dev = defaultBollingerStdDev
	}
	n := len(candles)
	if n < period {
		return nil, insufficient(NameBollinger, period, n)
	}

	cls := closes(candles)
	middle := rollingMean(cls, period)
	offset := period - 1

	upper := make([]float64, len(middle))
	lower := make([]float64, len(middle))
	tags := make([]Tag, len(middle))
	for i := range middle {
		// Population standard deviation over the window ending at offset+i.
		var ss float64
		for j := offset + i - period + 1; j <= offset+i; j++ {
			d := cls[j] - middle[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		upper[i] = middle[i] + dev*sd
		lower[i] = middle[i] - dev*sd

		close := cls[offset+i]
		switch {
		case close <= lower[i]:
			tags[i] = TagBuy
		case close >= upper[i]:
			tags[i] = TagSell
		default:
			tags[i] = TagNeutral
		}
	}

	p.Period, p.StdDev = period, dev
	return &Result{
		Name:   NameBollinger,
		Params: p,
		Offset: offset,
		Values: middle,
		Series: map[string][]float64{
			"upper": upper,
			"lower": lower,
		},
		Tags: tags,
	}, nil
}
