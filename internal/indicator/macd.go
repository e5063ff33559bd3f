package indicator

import "papertrader/internal/model"

const (
	defaultMACDFast   = 12
	defaultMACDSlow   = 26
	defaultMACDSignal = 9
)

// computeMACD produces the MACD line (fast EMA − slow EMA), its signal line
// (EMA of the MACD line), and the histogram. Output is aligned to signal-line
// availability. Tags fire only on the bar where the MACD line crosses the
// signal line; the first output bar is neutral.
func computeMACD(candles []model.Candle, p Params) (*Result, error) {
	fast, slow, signal := p.FastPeriod, p.SlowPeriod, p.SignalPeriod
	if fast <= 0 {
		fast = defaultMACDFast
	}
	if slow <= 0 {
		slow = defaultMACDSlow
	}
	if signal <= 0 {
		signal = defaultMACDSignal
	}
	if fast >= slow {
		return nil, &model.ValidationError{Field: "fast_period", Msg: "must be smaller than slow_period"}
	}

	need := slow + signal - 1
	n := len(candles)
	if n < need {
		return nil, insufficient(NameMACD, need, n)
	}

	cls := closes(candles)
	fastEMA := emaSeries(cls, fast) // aligned at fast-1
	slowEMA := emaSeries(cls, slow) // aligned at slow-1

	// MACD line starts where both EMAs exist: candle index slow-1.
	macdLine := make([]float64, len(slowEMA))
	shift := slow - fast
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+shift] - slowEMA[i]
	}

	signalLine := emaSeries(macdLine, signal) // aligned at macdLine index signal-1

	// Trim the MACD line to the signal-aligned region.
	macdAligned := macdLine[signal-1:]
	histogram := make([]float64, len(signalLine))
	for i := range signalLine {
		histogram[i] = macdAligned[i] - signalLine[i]
	}

	tags := make([]Tag, len(signalLine))
	tags[0] = TagNeutral
	for i := 1; i < len(signalLine); i++ {
		prevDiff := macdAligned[i-1] - signalLine[i-1]
		curDiff := macdAligned[i] - signalLine[i]
		switch {
		case prevDiff <= 0 && curDiff > 0:
			tags[i] = TagBuy
		case prevDiff >= 0 && curDiff < 0:
			tags[i] = TagSell
		default:
			tags[i] = TagNeutral
		}
	}

	p.FastPeriod, p.SlowPeriod, p.SignalPeriod = fast, slow, signal
	return &Result{
		Name:   NameMACD,
		Params: p,
		Offset: need - 1,
		Values: macdAligned,
		Series: map[string][]float64{
			"signal":    signalLine,
			"histogram": histogram,
		},
		Tags: tags,
	}, nil
}
