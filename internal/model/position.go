package model

import (
	"encoding/json"
	"time"
)

// PositionSide is the direction of a position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Exit reasons recorded when a position is closed.
const (
	ExitStopLoss   = "Stop Loss"
	ExitTakeProfit = "Take Profit"
	ExitFlip       = "Opposite Fill"
	ExitManual     = "Manual"
)

// Position is a per-account, per-symbol holding. Quantity is always
// positive while open; direction is carried by Side. EntryPrice is the
// volume-weighted average across same-side adds.
type Position struct {
	ID           string       `json:"id"`
	Account      string       `json:"account"`
	Symbol       string       `json:"symbol"`
	Side         PositionSide `json:"side"`
	Qty          float64      `json:"qty"`
	EntryPrice   float64      `json:"entry_price"`
	CurrentPrice float64      `json:"current_price"`

	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
	RealizedPnL   float64 `json:"realized_pnl"`

	Status     PositionStatus `json:"status"`
	EntryTime  time.Time      `json:"entry_time"`
	ExitTime   time.Time      `json:"exit_time,omitempty"`
	ExitPrice  float64        `json:"exit_price,omitempty"`
	ExitReason string         `json:"exit_reason,omitempty"`
}

// Mark refreshes CurrentPrice, UnrealizedPnL and PnLPercent against price.
func (p *Position) Mark(price float64) {
	p.CurrentPrice = price
	if p.Side == PositionLong {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Qty
	} else {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Qty
	}
	if basis := p.EntryPrice * p.Qty; basis > 0 {
		p.PnLPercent = p.UnrealizedPnL / basis * 100
	} else {
		p.PnLPercent = 0
	}
}

// PnLAt returns the realized PnL of closing qty units at price, without
// mutating the position.
func (p *Position) PnLAt(price, qty float64) float64 {
	if p.Side == PositionLong {
		return (price - p.EntryPrice) * qty
	}
	return (p.EntryPrice - price) * qty
}

// Key returns a unique key for this position: "account:symbol".
func (p *Position) Key() string {
	return p.Account + ":" + p.Symbol
}

// JSON returns the JSON-encoded position.
func (p *Position) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}
