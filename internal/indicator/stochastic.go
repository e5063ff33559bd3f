package indicator

import "papertrader/internal/model"

const (
	defaultStochK = 14
	defaultStochD = 3

	stochOversold   = 20.0
	stochOverbought = 80.0
)

// computeStochastic produces the fast stochastic oscillator: %K over KPeriod
// highs/lows and %D as an SMA(DPeriod) of %K. Output is aligned to %D
// availability. Tags: %K oversold → buy, overbought → sell.
func computeStochastic(candles []model.Candle, p Params) (*Result, error) {
	kPeriod, dPeriod := p.KPeriod, p.DPeriod
	if kPeriod <= 0 {
		kPeriod = defaultStochK
	}
	if dPeriod <= 0 {
		dPeriod = defaultStochD
	}

	need := kPeriod + dPeriod - 1
	n := len(candles)
	if n < need {
		return nil, insufficient(NameStochastic, need, n)
	}

	// Raw %K, aligned at candle index kPeriod-1.
	rawK := make([]float64, 0, n-kPeriod+1)
	for i := kPeriod - 1; i < n; i++ {
		hi, lo := candles[i].High, candles[i].Low
		for j := i - kPeriod + 1; j < i; j++ {
			if candles[j].High > hi {
				hi = candles[j].High
			}
			if candles[j].Low < lo {
				lo = candles[j].Low
			}
		}
		if hi == lo {
			rawK = append(rawK, 50.0)
			continue
		}
		rawK = append(rawK, (candles[i].Close-lo)/(hi-lo)*100.0)
	}

	dLine := rollingMean(rawK, dPeriod)
	kAligned := rawK[dPeriod-1:]

	tags := make([]Tag, len(kAligned))
	for i, k := range kAligned {
		switch {
		case k < stochOversold:
			tags[i] = TagBuy
		case k > stochOverbought:
			tags[i] = TagSell
		default:
			tags[i] = TagNeutral
		}
	}

	p.KPeriod, p.DPeriod = kPeriod, dPeriod
	return &Result{
		Name:   NameStochastic,
		Params: p,
		Offset: need - 1,
		Values: kAligned,
		Series: map[string][]float64{"d": dLine},
		Tags:   tags,
	}, nil
}
