// Package feed pulls prices and candles from an exchange endpoint and serves
// the latest snapshot to the rest of the engine.
//
// The poller never lets a slow network call block evaluation: callers always
// read the last known value immediately while polls refresh it in the
// background, falling back from the live endpoint to the cached price, an
// alternate source, and finally a static default table.
package feed

import (
	"context"
	"time"

	"papertrader/internal/model"
)

// PriceSource supplies current prices and historical candles for a symbol.
// Symbols use the "BASE/QUOTE" form throughout, e.g. "BTC/USDT".
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (model.PriceTick, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// defaultPrices is the static last-resort table. The values only need to be
// plausible: they keep the simulator running when every endpoint is down.
var defaultPrices = map[string]float64{
	"BTC/USDT":  60000,
	"ETH/USDT":  3000,
	"BNB/USDT":  500,
	"SOL/USDT":  150,
	"XRP/USDT":  0.60,
	"ADA/USDT":  0.45,
	"DOGE/USDT": 0.12,
}

// staticFallbackPrice is used for symbols missing from the table.
const staticFallbackPrice = 100

// StaticSource serves the default price table. It never fails, which makes it
// the terminal link of the fallback chain.
type StaticSource struct{}

// CurrentPrice returns the table price for symbol, marked as synthetic.
func (StaticSource) CurrentPrice(_ context.Context, symbol string) (model.PriceTick, error) {
	price, ok := defaultPrices[symbol]
	if !ok {
		price = staticFallbackPrice
	}
	return model.PriceTick{
		Symbol: symbol,
		Price:  price,
		Origin: model.OriginFallback,
		TS:     time.Now().UTC(),
	}, nil
}

// Klines synthesizes a flat candle series at the table price so downstream
// indicator warm-up still has a window to chew on.
func (StaticSource) Klines(_ context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	price, ok := defaultPrices[symbol]
	if !ok {
		price = staticFallbackPrice
	}
	step := intervalDuration(interval)
	now := time.Now().UTC().Truncate(step)

	candles := make([]model.Candle, limit)
	for i := 0; i < limit; i++ {
		ts := now.Add(-time.Duration(limit-1-i) * step)
		candles[i] = model.Candle{
			Symbol:   symbol,
			Interval: interval,
			TS:       ts,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   0,
		}
	}
	return candles, nil
}

// intervalDuration maps exchange interval strings ("1m", "4h", "1d") to a
// duration, defaulting to one minute for anything unrecognized.
func intervalDuration(interval string) time.Duration {
	if len(interval) < 2 {
		return time.Minute
	}
	n := 0
	for _, r := range interval[:len(interval)-1] {
		if r < '0' || r > '9' {
			return time.Minute
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return time.Minute
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}
