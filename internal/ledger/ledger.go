// Package ledger tracks per-account balances, open/closed positions, and
// realized/unrealized P&L.
//
// All mutations for one account — balance debit/credit and position changes
// for a fill, or an auto-close on a price tick — happen under that account's
// lock, so concurrent fills and ticks never produce lost updates to the
// weighted-average entry price or the balance.
package ledger

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"papertrader/internal/event"
	"papertrader/internal/model"
)

// Config holds the ledger's auto-close thresholds and fee rate.
type Config struct {
	StopLossPct   float64 // fraction, e.g. 0.02 → auto-close at −2% pnl
	TakeProfitPct float64 // fraction, e.g. 0.04 → auto-close at +4% pnl
	FeeRate       float64 // fraction of notional charged on every fill
}

// Repository persists positions and balances. Implementations must be safe
// for concurrent use. A nil repository keeps the ledger memory-only.
type Repository interface {
	SavePosition(p *model.Position) error
	SaveBalance(account, currency string, amount float64) error
}

// Ledger owns all accounts' positions and balances.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*account

	cfg  Config
	bus  *event.Bus
	repo Repository
	now  func() time.Time

	// OnAutoClose is called after a stop-loss or take-profit close, outside
	// of any hot-path requirement (still under the account lock).
	OnAutoClose func(pos model.Position)
}

type account struct {
	mu       sync.Mutex
	name     string
	balances map[string]float64
	open     map[string]*model.Position // key = symbol
	closed   []*model.Position
	realized float64
}

// New creates a Ledger. bus and repo may be nil.
func New(cfg Config, bus *event.Bus, repo Repository) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		cfg:      cfg,
		bus:      bus,
		repo:     repo,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock (tests only).
func (l *Ledger) SetNow(now func() time.Time) { l.now = now }

func (l *Ledger) account(name string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[name]
	if !ok {
		a = &account{
			name:     name,
			balances: make(map[string]float64),
			open:     make(map[string]*model.Position),
		}
		l.accounts[name] = a
	}
	return a
}

// SetBalance seeds an account's balance in the given currency.
func (l *Ledger) SetBalance(accountName, currency string, amount float64) {
	a := l.account(accountName)
	a.mu.Lock()
	a.balances[currency] = amount
	a.mu.Unlock()
	l.persistBalance(accountName, currency, amount)
}

// Balance returns an account's balance in the given currency.
func (l *Ledger) Balance(accountName, currency string) float64 {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[currency]
}

// OpenPosition returns a copy of the open position for account+symbol.
func (l *Ledger) OpenPosition(accountName, symbol string) (model.Position, bool) {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.open[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions for an account.
func (l *Ledger) Positions(accountName string) []model.Position {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Position, 0, len(a.open))
	for _, p := range a.open {
		out = append(out, *p)
	}
	return out
}

// ClosedPositions returns copies of all closed positions for an account.
func (l *Ledger) ClosedPositions(accountName string) []model.Position {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Position, 0, len(a.closed))
	for _, p := range a.closed {
		out = append(out, *p)
	}
	return out
}

// RealizedPnL returns the account's cumulative realized P&L.
func (l *Ledger) RealizedPnL(accountName string) float64 {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized
}

// Summary is a point-in-time P&L view of one account.
type Summary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	OpenPositions int     `json:"open_positions"`
	ClosedTrades  int     `json:"closed_trades"`
}

// GetSummary returns the current P&L summary for an account.
func (l *Ledger) GetSummary(accountName string) Summary {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()

	var unrealized float64
	for _, p := range a.open {
		unrealized += p.UnrealizedPnL
	}
	return Summary{
		RealizedPnL:   a.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      a.realized + unrealized,
		OpenPositions: len(a.open),
		ClosedTrades:  len(a.closed),
	}
}

// ApplyFill applies a filled order to balances and positions as one atomic
// per-account transaction. An opposite-side fill first closes or reduces the
// existing position; only residual quantity opens a new position ("flip" =
// close + open, never a netted quantity).
//
// Buy fills require balance ≥ notional + fee; a shortfall is a validation
// error and leaves account state unchanged.
func (l *Ledger) ApplyFill(o *model.Order, fillPrice float64) error {
	if o.FilledQty <= 0 || fillPrice <= 0 {
		return &model.ValidationError{Field: "fill", Msg: "fill quantity and price must be positive"}
	}

	a := l.account(o.Account)
	a.mu.Lock()
	defer a.mu.Unlock()

	quote := quoteCurrency(o.Symbol)
	qty := o.FilledQty
	notional := qty * fillPrice
	fee := notional * l.cfg.FeeRate

	if o.Side == model.SideBuy {
		needed := notional + fee
		if a.balances[quote] < needed {
			return &model.ValidationError{Field: "balance", Msg: "insufficient balance for buy fill"}
		}
		a.balances[quote] -= needed
	} else {
		a.balances[quote] += notional - fee
	}

	fillSide := model.PositionLong
	if o.Side == model.SideSell {
		fillSide = model.PositionShort
	}

	pos, exists := a.open[o.Symbol]
	switch {
	case !exists:
		l.openLocked(a, o.Symbol, fillSide, qty, fillPrice)

	case pos.Side == fillSide:
		// Same-side add: volume-weighted average entry, quantity grows.
		total := pos.EntryPrice*pos.Qty + fillPrice*qty
		pos.Qty += qty
		pos.EntryPrice = total / pos.Qty
		pos.Mark(fillPrice)
		l.emitPosition(a, pos)

	default:
		// Opposite side: close/reduce first, then open any residual.
		closeQty := qty
		if closeQty > pos.Qty {
			closeQty = pos.Qty
		}
		a.realized += pos.PnLAt(fillPrice, closeQty)
		pos.RealizedPnL += pos.PnLAt(fillPrice, closeQty)

		if closeQty == pos.Qty {
			l.closeLocked(a, pos, fillPrice, model.ExitFlip)
		} else {
			// Partial reduce: quantity shrinks, entry price unchanged.
			pos.Qty -= closeQty
			pos.Mark(fillPrice)
			l.emitPosition(a, pos)
		}

		if residual := qty - closeQty; residual > 0 {
			l.openLocked(a, o.Symbol, fillSide, residual, fillPrice)
		}
	}

	l.persistBalance(o.Account, quote, a.balances[quote])
	l.publish(model.Event{
		Type:    model.EventBalanceUpdate,
		Account: o.Account,
		Data:    model.BalanceUpdate{Account: o.Account, Currency: quote, Balance: a.balances[quote]},
	})
	return nil
}

// OnPriceTick marks every open position in symbol to price and evaluates the
// stop-loss/take-profit thresholds before returning.
func (l *Ledger) OnPriceTick(symbol string, price float64) {
	if price <= 0 {
		return
	}

	l.mu.Lock()
	accounts := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accounts = append(accounts, a)
	}
	l.mu.Unlock()

	for _, a := range accounts {
		a.mu.Lock()
		pos, ok := a.open[symbol]
		if !ok {
			a.mu.Unlock()
			continue
		}
		pos.Mark(price)

		switch {
		case l.cfg.StopLossPct > 0 && pos.PnLPercent <= -l.cfg.StopLossPct*100:
			l.autoCloseLocked(a, pos, price, model.ExitStopLoss)
		case l.cfg.TakeProfitPct > 0 && pos.PnLPercent >= l.cfg.TakeProfitPct*100:
			l.autoCloseLocked(a, pos, price, model.ExitTakeProfit)
		default:
			l.emitPosition(a, pos)
		}
		a.mu.Unlock()
	}
}

// ClosePosition closes an open position in full at its current marked price.
func (l *Ledger) ClosePosition(accountName, symbol, reason string) (model.Position, error) {
	a := l.account(accountName)
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.open[symbol]
	if !ok {
		return model.Position{}, &model.ValidationError{Field: "symbol", Msg: "no open position"}
	}
	price := pos.CurrentPrice
	if price <= 0 {
		price = pos.EntryPrice
	}
	l.settleCloseLocked(a, pos, price)
	l.closeLocked(a, pos, price, reason)
	return *pos, nil
}

// autoCloseLocked realizes a protective close at price. Unlike order fills it
// is never blocked on balance: a short buy-back is settled even if it drives
// the balance negative, which is logged loudly.
func (l *Ledger) autoCloseLocked(a *account, pos *model.Position, price float64, reason string) {
	l.settleCloseLocked(a, pos, price)
	l.closeLocked(a, pos, price, reason)
	log.Printf("[ledger] auto-close %s %s %s qty=%.6f entry=%.2f exit=%.2f pnl=%.2f (%s)",
		a.name, pos.Symbol, pos.Side, pos.Qty, pos.EntryPrice, price, pos.RealizedPnL, reason)
	if l.OnAutoClose != nil {
		l.OnAutoClose(*pos)
	}
}

// settleCloseLocked applies the cash and realized-P&L effects of closing
// pos in full at price.
func (l *Ledger) settleCloseLocked(a *account, pos *model.Position, price float64) {
	quote := quoteCurrency(pos.Symbol)
	notional := pos.Qty * price
	fee := notional * l.cfg.FeeRate

	if pos.Side == model.PositionLong {
		a.balances[quote] += notional - fee
	} else {
		a.balances[quote] -= notional + fee
		if a.balances[quote] < 0 {
			log.Printf("[ledger] WARNING: account %s balance negative (%.2f %s) after short buy-back",
				a.name, a.balances[quote], quote)
		}
	}

	pnl := pos.PnLAt(price, pos.Qty)
	a.realized += pnl
	pos.RealizedPnL += pnl

	l.persistBalance(a.name, quote, a.balances[quote])
	l.publish(model.Event{
		Type:    model.EventBalanceUpdate,
		Account: a.name,
		Data:    model.BalanceUpdate{Account: a.name, Currency: quote, Balance: a.balances[quote]},
	})
}

// closeLocked transitions pos to closed and records the exit. Terminal: the
// position is removed from the open set and never mutated again.
func (l *Ledger) closeLocked(a *account, pos *model.Position, price float64, reason string) {
	pos.Mark(price)
	pos.Status = model.PositionClosed
	pos.ExitPrice = price
	pos.ExitTime = l.now()
	pos.ExitReason = reason
	pos.UnrealizedPnL = 0
	pos.PnLPercent = 0

	delete(a.open, pos.Symbol)
	a.closed = append(a.closed, pos)
	l.emitPosition(a, pos)
}

func (l *Ledger) openLocked(a *account, symbol string, side model.PositionSide, qty, price float64) {
	pos := &model.Position{
		ID:         uuid.NewString(),
		Account:    a.name,
		Symbol:     symbol,
		Side:       side,
		Qty:        qty,
		EntryPrice: price,
		Status:     model.PositionOpen,
		EntryTime:  l.now(),
	}
	pos.Mark(price)
	a.open[symbol] = pos
	l.emitPosition(a, pos)
}

func (l *Ledger) emitPosition(a *account, pos *model.Position) {
	if l.repo != nil {
		if err := l.repo.SavePosition(pos); err != nil {
			log.Printf("[ledger] persist position %s: %v", pos.ID, err)
		}
	}
	l.publish(model.Event{Type: model.EventPositionUpdate, Account: a.name, Data: *pos})
}

func (l *Ledger) persistBalance(accountName, currency string, amount float64) {
	if l.repo == nil {
		return
	}
	if err := l.repo.SaveBalance(accountName, currency, amount); err != nil {
		log.Printf("[ledger] persist balance %s/%s: %v", accountName, currency, err)
	}
}

func (l *Ledger) publish(ev model.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

func quoteCurrency(symbol string) string {
	if idx := strings.IndexByte(symbol, '/'); idx >= 0 {
		return symbol[idx+1:]
	}
	return "USDT"
}
