// Package execution simulates order placement against live reference prices.
//
// The Executor validates order intents, fills market orders immediately at
// the quoted price plus configured slippage, and parks limit/stop orders in a
// resting book until a price crossing triggers them. Fills are settled
// through the ledger as one atomic per-account transaction, and every order
// state transition is published on the event bus synchronously before the
// call returns.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"papertrader/internal/event"
	"papertrader/internal/model"
)

// Quoter supplies the current reference price for a symbol.
type Quoter interface {
	CurrentPrice(ctx context.Context, symbol string) (model.PriceTick, error)
}

// Settler applies a fill's balance and position effects atomically.
// *ledger.Ledger satisfies this.
type Settler interface {
	ApplyFill(o *model.Order, fillPrice float64) error
}

// Config holds the simulator's execution parameters.
type Config struct {
	SlippageBps    float64 // basis points applied against the taker on market fills
	FeeRate        float64 // fraction of notional, recorded on the order
	MaxOrderSize   float64 // max notional per order in quote currency, 0 = unlimited
	MaxDailyOrders int     // orders accepted per local calendar day, 0 = unlimited
}

// Executor is the paper-trading order simulator.
type Executor struct {
	mu      sync.Mutex
	orders  map[string]*model.Order
	resting map[string][]*model.Order // symbol → working limit/stop orders
	seq     int64

	dailyCount int
	dailyDate  string // local calendar date of the counter

	cfg     Config
	quoter  Quoter
	settler Settler
	bus     *event.Bus
	journal *Journal
	now     func() time.Time
}

// New creates an Executor. bus and journal may be nil.
func New(cfg Config, quoter Quoter, settler Settler, bus *event.Bus, journal *Journal) *Executor {
	return &Executor{
		orders:  make(map[string]*model.Order),
		resting: make(map[string][]*model.Order),
		cfg:     cfg,
		quoter:  quoter,
		settler: settler,
		bus:     bus,
		journal: journal,
		now:     time.Now,
	}
}

// SetNow overrides the clock (tests only).
func (e *Executor) SetNow(now func() time.Time) { e.now = now }

// PlaceOrder validates intent and executes it in paper mode. Validation and
// limit failures return a typed error before any order object exists; only
// intents that pass all checks produce an order.
func (e *Executor) PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.Order, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	tick, err := e.quoter.CurrentPrice(ctx, intent.Symbol)
	if err != nil {
		return nil, &model.ExternalFetchError{Endpoint: "price:" + intent.Symbol, Err: err}
	}
	ref := tick.Price

	if e.cfg.MaxOrderSize > 0 && intent.Qty*ref > e.cfg.MaxOrderSize {
		return nil, &model.LimitExceededError{
			Limit: "max_order_size",
			Msg:   fmt.Sprintf("notional %.2f exceeds max order size %.2f", intent.Qty*ref, e.cfg.MaxOrderSize),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkDailyCapLocked(); err != nil {
		return nil, err
	}

	e.seq++
	o := &model.Order{
		ID:        fmt.Sprintf("PAPER-%d", e.seq),
		Account:   intent.Account,
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Type:      intent.Type,
		Qty:       intent.Qty,
		Price:     intent.Price,
		StopPrice: intent.StopPrice,
		TIF:       intent.TIF,
		Status:    model.StatusPending,
		CreatedAt: e.now().UTC(),
		UpdatedAt: e.now().UTC(),
	}
	e.orders[o.ID] = o
	e.dailyCount++
	e.emitLocked(o)

	switch o.Type {
	case model.OrderMarket:
		e.fillLocked(o, e.slipped(ref, o.Side))

	case model.OrderLimit:
		if limitCrossed(o, ref) {
			e.fillLocked(o, o.Price)
		} else if o.TIF == model.TIFImmediate {
			o.Status = model.StatusCancelled
			o.UpdatedAt = e.now().UTC()
			e.emitLocked(o)
		} else {
			e.resting[o.Symbol] = append(e.resting[o.Symbol], o)
		}

	case model.OrderStop:
		// Stops never trigger on the placement quote, only on a later tick.
		e.resting[o.Symbol] = append(e.resting[o.Symbol], o)
	}

	return o, nil
}

// CancelOrder cancels a pending order. The race against a concurrent fill is
// resolved under the same lock the fill path holds: fill wins, and the
// canceller gets ErrAlreadyFilled rather than a corrupted order.
func (e *Executor) CancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return model.ErrOrderNotFound
	}
	switch o.Status {
	case model.StatusFilled:
		return model.ErrAlreadyFilled
	case model.StatusCancelled, model.StatusRejected:
		return nil
	}

	o.Status = model.StatusCancelled
	o.UpdatedAt = e.now().UTC()
	e.removeRestingLocked(o)
	e.emitLocked(o)
	log.Printf("[executor] cancelled %s %s %s qty=%.6f", o.ID, o.Side, o.Symbol, o.Qty)
	return nil
}

// GetOrder returns a copy of the order with the given id.
func (e *Executor) GetOrder(id string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Orders returns copies of all orders for an account, unordered.
func (e *Executor) Orders(account string) []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range e.orders {
		if o.Account == account {
			out = append(out, *o)
		}
	}
	return out
}

// DailyOrderCount returns the number of orders accepted today.
func (e *Executor) DailyOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.localDate() != e.dailyDate {
		return 0
	}
	return e.dailyCount
}

func (e *Executor) checkDailyCapLocked() error {
	today := e.localDate()
	if today != e.dailyDate {
		e.dailyDate = today
		e.dailyCount = 0
	}
	if e.cfg.MaxDailyOrders > 0 && e.dailyCount >= e.cfg.MaxDailyOrders {
		return &model.LimitExceededError{
			Limit: "max_daily_orders",
			Msg:   fmt.Sprintf("daily order cap of %d reached", e.cfg.MaxDailyOrders),
		}
	}
	return nil
}

func (e *Executor) localDate() string {
	return e.now().Format("2006-01-02")
}

// fillLocked settles o in full at price. A settlement rejection (for example
// insufficient balance) transitions the order to rejected instead of filled;
// the intent was accepted, so the order object exists either way.
func (e *Executor) fillLocked(o *model.Order, price float64) {
	o.FilledQty = o.Qty
	o.AvgPrice = price
	o.Fee = o.Qty * price * e.cfg.FeeRate
	o.UpdatedAt = e.now().UTC()

	if err := e.settler.ApplyFill(&model.Order{
		ID: o.ID, Account: o.Account, Symbol: o.Symbol, Side: o.Side,
		Type: o.Type, Qty: o.Qty, FilledQty: o.FilledQty,
	}, price); err != nil {
		o.Status = model.StatusRejected
		o.FilledQty = 0
		o.AvgPrice = 0
		o.Fee = 0
		e.emitLocked(o)
		log.Printf("[executor] rejected %s %s %s qty=%.6f: %v", o.ID, o.Side, o.Symbol, o.Qty, err)
		return
	}

	o.Status = model.StatusFilled
	e.emitLocked(o)
	log.Printf("[executor] filled %s %s %s qty=%.6f price=%.2f fee=%.4f",
		o.ID, o.Side, o.Symbol, o.FilledQty, price, o.Fee)

	if e.journal != nil {
		if err := e.journal.RecordFill(*o); err != nil {
			log.Printf("[executor] journal fill %s: %v", o.ID, err)
		}
	}
}

// slipped applies configured slippage against the taker.
func (e *Executor) slipped(price float64, side model.Side) float64 {
	if e.cfg.SlippageBps <= 0 {
		return price
	}
	slip := price * e.cfg.SlippageBps / 10000
	if side == model.SideBuy {
		return price + slip
	}
	return price - slip
}

func (e *Executor) removeRestingLocked(o *model.Order) {
	book := e.resting[o.Symbol]
	for i, r := range book {
		if r.ID == o.ID {
			e.resting[o.Symbol] = append(book[:i], book[i+1:]...)
			return
		}
	}
}

func (e *Executor) emitLocked(o *model.Order) {
	if e.bus != nil {
		e.bus.Publish(model.Event{Type: model.EventOrderUpdate, Account: o.Account, Data: *o})
	}
}

func limitCrossed(o *model.Order, price float64) bool {
	if o.Side == model.SideBuy {
		return price <= o.Price
	}
	return price >= o.Price
}
