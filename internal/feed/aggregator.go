package feed

import (
	"sync"
	"time"

	"papertrader/internal/model"
)

// bucketState holds the in-progress candle for one symbol in the current
// interval bucket.
type bucketState struct {
	bucket time.Time // interval-aligned open time
	candle model.Candle
}

// Aggregator buckets polled price ticks into fixed-interval candles so the
// candle window only ever holds genuine interval bars. Ticks inside a bucket
// update its high/low/close in place; a tick past the bucket end finalizes
// the bar and starts the next one.
type Aggregator struct {
	mu       sync.Mutex
	interval string
	dur      time.Duration
	states   map[string]*bucketState

	// OnLateTick is called when a tick older than the current bucket is
	// dropped (optional, for metrics).
	OnLateTick func()
}

// NewAggregator creates an Aggregator for the given interval ("1m", "5m", ...).
func NewAggregator(interval string) *Aggregator {
	return &Aggregator{
		interval: interval,
		dur:      intervalDuration(interval),
		states:   make(map[string]*bucketState),
	}
}

// Add incorporates tick into its symbol's current bucket. When the tick opens
// a new bucket, the finished candle for the previous bucket is returned with
// true; otherwise the zero candle and false.
func (a *Aggregator) Add(tick model.PriceTick) (model.Candle, bool) {
	bucket := tick.TS.Truncate(a.dur)

	a.mu.Lock()
	defer a.mu.Unlock()

	state, exists := a.states[tick.Symbol]
	if exists && bucket.Before(state.bucket) {
		// Late tick from an already finalized bucket.
		if a.OnLateTick != nil {
			a.OnLateTick()
		}
		return model.Candle{}, false
	}

	if !exists {
		a.states[tick.Symbol] = newBucket(tick, a.interval, bucket)
		return model.Candle{}, false
	}

	if bucket.After(state.bucket) {
		closed := state.candle
		a.states[tick.Symbol] = newBucket(tick, a.interval, bucket)
		return closed, true
	}

	c := &state.candle
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	return model.Candle{}, false
}

// Forming returns the in-progress candle for symbol, if any.
func (a *Aggregator) Forming(symbol string) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.states[symbol]
	if !ok {
		return model.Candle{}, false
	}
	return state.candle, true
}

func newBucket(tick model.PriceTick, interval string, bucket time.Time) *bucketState {
	return &bucketState{
		bucket: bucket,
		candle: model.Candle{
			Symbol:   tick.Symbol,
			Interval: interval,
			TS:       bucket,
			Open:     tick.Price,
			High:     tick.Price,
			Low:      tick.Price,
			Close:    tick.Price,
		},
	}
}
