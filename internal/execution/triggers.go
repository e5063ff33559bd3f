package execution

import (
	"papertrader/internal/model"
)

// CheckTriggers evaluates the resting limit/stop book for symbol against a
// new reference price and fills every order whose condition is met. The feed
// loop calls this on each tick, before the ledger marks positions, so resting
// orders and protective closes see the same price.
//
// Fill prices: a limit order fills at its limit price; a stop order becomes a
// market order at the triggering price, so it pays slippage like any market
// fill. Returns the number of orders filled.
func (e *Executor) CheckTriggers(symbol string, price float64) int {
	if price <= 0 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	book := e.resting[symbol]
	if len(book) == 0 {
		return 0
	}

	filled := 0
	remaining := book[:0]
	for _, o := range book {
		if o.Status != model.StatusPending {
			continue // cancelled while resting
		}
		switch {
		case o.Type == model.OrderLimit && limitCrossed(o, price):
			e.fillLocked(o, o.Price)
			filled++
		case o.Type == model.OrderStop && stopTriggered(o, price):
			e.fillLocked(o, e.slipped(price, o.Side))
			filled++
		default:
			remaining = append(remaining, o)
		}
	}
	e.resting[symbol] = remaining
	return filled
}

// RestingOrders returns the number of working limit/stop orders for symbol.
func (e *Executor) RestingOrders(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, o := range e.resting[symbol] {
		if o.Status == model.StatusPending {
			n++
		}
	}
	return n
}

// stopTriggered reports whether price has reached o's stop level. A buy stop
// arms above the market, a sell stop below it.
func stopTriggered(o *model.Order, price float64) bool {
	if o.Side == model.SideBuy {
		return price >= o.StopPrice
	}
	return price <= o.StopPrice
}
