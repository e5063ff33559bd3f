package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
	OrderStop   OrderType = "stop"
)

// TimeInForce controls how long an order remains working.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFImmediate      TimeInForce = "IOC"
)

// OrderStatus is the lifecycle state of an order.
//
// State machine: pending → {filled | partially_filled → filled | cancelled | rejected}.
// filled, cancelled, and rejected are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusPartially OrderStatus = "partially_filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// OrderIntent is an ephemeral order request. It is validated and converted
// into an Order by the executor; it is never persisted on its own.
type OrderIntent struct {
	Account   string      `json:"account"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Type      OrderType   `json:"type"`
	Qty       float64     `json:"qty"`
	Price     float64     `json:"price"`      // required for limit orders
	StopPrice float64     `json:"stop_price"` // required for stop orders
	TIF       TimeInForce `json:"tif"`
}

// Validate checks the structural fields of the intent. Notional and daily-cap
// checks are the executor's job because they need the reference price.
func (i *OrderIntent) Validate() error {
	if strings.TrimSpace(i.Account) == "" {
		return &ValidationError{Field: "account", Msg: "account is required"}
	}
	if strings.TrimSpace(i.Symbol) == "" {
		return &ValidationError{Field: "symbol", Msg: "symbol is required"}
	}
	switch i.Side {
	case SideBuy, SideSell:
	default:
		return &ValidationError{Field: "side", Msg: "side must be buy or sell"}
	}
	switch i.Type {
	case OrderMarket, OrderLimit, OrderStop:
	default:
		return &ValidationError{Field: "type", Msg: "type must be market, limit or stop"}
	}
	if i.Qty <= 0 {
		return &ValidationError{Field: "qty", Msg: "quantity must be positive"}
	}
	if i.Type == OrderLimit && i.Price <= 0 {
		return &ValidationError{Field: "price", Msg: "limit order requires a positive price"}
	}
	if i.Type == OrderStop && i.StopPrice <= 0 {
		return &ValidationError{Field: "stop_price", Msg: "stop order requires a positive stop price"}
	}
	return nil
}

// QuoteCurrency returns the quote leg of the symbol ("BTC/USDT" → "USDT").
// Falls back to "USDT" for symbols without a separator.
func (i *OrderIntent) QuoteCurrency() string {
	if idx := strings.IndexByte(i.Symbol, '/'); idx >= 0 {
		return i.Symbol[idx+1:]
	}
	return "USDT"
}

// Order is a persisted order created from an OrderIntent.
type Order struct {
	ID        string      `json:"id"`
	Account   string      `json:"account"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Type      OrderType   `json:"type"`
	Qty       float64     `json:"qty"`
	Price     float64     `json:"price"`
	StopPrice float64     `json:"stop_price"`
	TIF       TimeInForce `json:"tif"`

	Status    OrderStatus `json:"status"`
	FilledQty float64     `json:"filled_qty"`
	AvgPrice  float64     `json:"avg_price"` // average fill price
	Fee       float64     `json:"fee"`       // quote-currency fee, attached on fill
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Notional returns the quote value of the filled (or, while pending,
// requested) quantity at price p.
func (o *Order) Notional(p float64) float64 {
	return o.Qty * p
}

// JSON returns the JSON-encoded order.
func (o *Order) JSON() []byte {
	b, _ := json.Marshal(o)
	return b
}
