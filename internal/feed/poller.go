package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"papertrader/internal/model"
)

// PollerConfig controls the polling loops.
type PollerConfig struct {
	Interval time.Duration // cadence per symbol
	Timeout  time.Duration // budget for a single poll
}

// DefaultPollerConfig polls every 5s with a 5s per-poll timeout.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 5 * time.Second, Timeout: 5 * time.Second}
}

// Poller runs one polling loop per subscribed symbol and caches the latest
// tick. Each loop is strictly sequential: a new poll starts only after the
// previous one for that symbol resolved or timed out, so polls never stack.
type Poller struct {
	primary   PriceSource
	alternate PriceSource // may be nil
	static    StaticSource
	cfg       PollerConfig

	mu     sync.RWMutex
	last   map[string]model.PriceTick
	cancel map[string]context.CancelFunc
	wg     sync.WaitGroup

	// OnTick is invoked from the polling goroutine after every resolved poll,
	// including fallback resolutions.
	OnTick func(model.PriceTick)
}

// NewPoller creates a Poller. alternate may be nil to skip that fallback.
func NewPoller(primary, alternate PriceSource, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Poller{
		primary:   primary,
		alternate: alternate,
		cfg:       cfg,
		last:      make(map[string]model.PriceTick),
		cancel:    make(map[string]context.CancelFunc),
	}
}

// Subscribe starts the polling loop for symbol. Subscribing an already
// subscribed symbol is a no-op.
func (p *Poller) Subscribe(ctx context.Context, symbol string) {
	p.mu.Lock()
	if _, ok := p.cancel[symbol]; ok {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel[symbol] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, symbol)
}

// Unsubscribe stops the polling loop for symbol and drops its cached tick.
func (p *Poller) Unsubscribe(symbol string) {
	p.mu.Lock()
	cancel, ok := p.cancel[symbol]
	if ok {
		delete(p.cancel, symbol)
		delete(p.last, symbol)
	}
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close stops all polling loops and waits for them to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	for symbol, cancel := range p.cancel {
		cancel()
		delete(p.cancel, symbol)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, symbol string) {
	defer p.wg.Done()

	p.pollOnce(ctx, symbol)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, symbol)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, symbol string) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	tick := p.resolve(ctx, symbol)
	p.mu.Lock()
	p.last[symbol] = tick
	p.mu.Unlock()

	if p.OnTick != nil {
		p.OnTick(tick)
	}
}

// resolve walks the fallback chain: live endpoint, cached tick, alternate
// endpoint, static table. Each hop is logged distinctly so operators can tell
// stale data from synthetic data. The static table means resolve never fails.
func (p *Poller) resolve(ctx context.Context, symbol string) model.PriceTick {
	tick, err := p.primary.CurrentPrice(ctx, symbol)
	if err == nil {
		return tick
	}
	log.Printf("[feed] primary fetch failed for %s: %v", symbol, err)

	p.mu.RLock()
	cached, ok := p.last[symbol]
	p.mu.RUnlock()
	if ok && cached.Origin != model.OriginFallback {
		log.Printf("[feed] serving cached price for %s (age %s)", symbol, time.Since(cached.TS).Round(time.Millisecond))
		cached.Origin = model.OriginCached
		return cached
	}

	if p.alternate != nil {
		tick, err = p.alternate.CurrentPrice(ctx, symbol)
		if err == nil {
			log.Printf("[feed] serving alternate endpoint price for %s", symbol)
			return tick
		}
		log.Printf("[feed] alternate fetch failed for %s: %v", symbol, err)
	}

	tick, _ = p.static.CurrentPrice(ctx, symbol)
	log.Printf("[feed] serving static default price for %s: %.2f", symbol, tick.Price)
	return tick
}

// LastPrice returns the cached tick for symbol without touching the network.
func (p *Poller) LastPrice(symbol string) (model.PriceTick, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tick, ok := p.last[symbol]
	return tick, ok
}

// CurrentPrice serves the cached tick when one exists and otherwise resolves
// synchronously through the fallback chain. It never returns an error: the
// static table is always available.
func (p *Poller) CurrentPrice(ctx context.Context, symbol string) (model.PriceTick, error) {
	if tick, ok := p.LastPrice(symbol); ok {
		return tick, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.resolve(ctx, symbol), nil
}

// Klines fetches candles through the same fallback order as prices.
func (p *Poller) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	candles, err := p.primary.Klines(ctx, symbol, interval, limit)
	if err == nil {
		return candles, nil
	}
	log.Printf("[feed] primary klines failed for %s %s: %v", symbol, interval, err)

	if p.alternate != nil {
		candles, err = p.alternate.Klines(ctx, symbol, interval, limit)
		if err == nil {
			log.Printf("[feed] serving alternate endpoint klines for %s %s", symbol, interval)
			return candles, nil
		}
		log.Printf("[feed] alternate klines failed for %s %s: %v", symbol, interval, err)
	}

	log.Printf("[feed] serving synthetic klines for %s %s", symbol, interval)
	return p.static.Klines(ctx, symbol, interval, limit)
}
