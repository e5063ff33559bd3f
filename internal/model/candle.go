package model

import (
	"encoding/json"
	"time"
)

// Candle represents one interval's OHLCV summary for a single symbol.
// TS is the bucket open time (UTC, interval-aligned).
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // e.g. "1m", "15m", "1h"
	TS       time.Time `json:"ts"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Key returns a unique key for this candle's window: "symbol:interval".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Interval
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// PriceOrigin describes where a price tick came from, so consumers can
// distinguish live, stale, and synthetic values.
type PriceOrigin string

const (
	OriginLive     PriceOrigin = "live"     // fresh fetch from the primary or alternate endpoint
	OriginCached   PriceOrigin = "cached"   // last successfully fetched price (stale)
	OriginFallback PriceOrigin = "fallback" // static default table (synthetic)
)

// PriceTick is a single reference-price observation for a symbol.
type PriceTick struct {
	Symbol string      `json:"symbol"`
	Price  float64     `json:"price"`
	Origin PriceOrigin `json:"origin"`
	TS     time.Time   `json:"ts"`
}

// JSON returns the JSON-encoded tick.
func (t *PriceTick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
