package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"papertrader/internal/model"
)

// BinanceSource fetches spot prices and klines from the Binance public API.
// Requests are rate limited client-side to stay under the exchange's request
// weight budget.
type BinanceSource struct {
	client  *binance.Client
	limiter *rate.Limiter
}

// NewBinanceSource creates a BinanceSource. Public market data endpoints need
// no API credentials.
func NewBinanceSource(timeout time.Duration) *BinanceSource {
	client := binance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{
		client: client,
		// 10 req/s with a small burst is far below the exchange budget but
		// ample for per-symbol polling.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// CurrentPrice returns the latest traded price for symbol.
func (b *BinanceSource) CurrentPrice(ctx context.Context, symbol string) (model.PriceTick, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return model.PriceTick{}, err
	}

	prices, err := b.client.NewListPricesService().Symbol(exchangeSymbol(symbol)).Do(ctx)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("binance price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return model.PriceTick{}, fmt.Errorf("binance price %s: empty response", symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("binance price %s: parse %q: %w", symbol, prices[0].Price, err)
	}

	return model.PriceTick{
		Symbol: symbol,
		Price:  price,
		Origin: model.OriginLive,
		TS:     time.Now().UTC(),
	}, nil
}

// Klines returns up to limit historical candles for symbol at interval,
// oldest first.
func (b *BinanceSource) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	klines, err := b.client.NewKlinesService().
		Symbol(exchangeSymbol(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		c := model.Candle{
			Symbol:   symbol,
			Interval: interval,
			TS:       time.UnixMilli(k.OpenTime).UTC(),
		}
		var perr error
		if c.Open, perr = strconv.ParseFloat(k.Open, 64); perr != nil {
			return nil, fmt.Errorf("binance klines %s: parse open %q: %w", symbol, k.Open, perr)
		}
		if c.High, perr = strconv.ParseFloat(k.High, 64); perr != nil {
			return nil, fmt.Errorf("binance klines %s: parse high %q: %w", symbol, k.High, perr)
		}
		if c.Low, perr = strconv.ParseFloat(k.Low, 64); perr != nil {
			return nil, fmt.Errorf("binance klines %s: parse low %q: %w", symbol, k.Low, perr)
		}
		if c.Close, perr = strconv.ParseFloat(k.Close, 64); perr != nil {
			return nil, fmt.Errorf("binance klines %s: parse close %q: %w", symbol, k.Close, perr)
		}
		if c.Volume, perr = strconv.ParseFloat(k.Volume, 64); perr != nil {
			return nil, fmt.Errorf("binance klines %s: parse volume %q: %w", symbol, k.Volume, perr)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// exchangeSymbol converts "BTC/USDT" to the exchange's "BTCUSDT" form.
func exchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
