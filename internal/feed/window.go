package feed

import (
	"sync"

	"papertrader/internal/model"
)

// Window is a bounded sliding window of candles for one (symbol, interval)
// pair. Candles are immutable once appended and timestamps are strictly
// increasing; appending an equal or older timestamp is rejected.
type Window struct {
	mu      sync.RWMutex
	candles []model.Candle
	cap     int
}

// NewWindow creates a window retaining at most capacity candles.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 200
	}
	return &Window{cap: capacity}
}

// Append adds c to the window, evicting the oldest candle when full.
// Returns false for out-of-order or duplicate timestamps.
func (w *Window) Append(c model.Candle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(w.candles); n > 0 && !c.TS.After(w.candles[n-1].TS) {
		return false
	}
	w.candles = append(w.candles, c)
	if len(w.candles) > w.cap {
		w.candles = w.candles[len(w.candles)-w.cap:]
	}
	return true
}

// Replace swaps the whole window for candles, keeping only the newest cap
// entries. Used when seeding from a klines fetch.
func (w *Window) Replace(candles []model.Candle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(candles) > w.cap {
		candles = candles[len(candles)-w.cap:]
	}
	w.candles = append(w.candles[:0], candles...)
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() []model.Candle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.Candle, len(w.candles))
	copy(out, w.candles)
	return out
}

// Len returns the number of candles currently held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.candles)
}

// Windows is a keyed set of candle windows, one per (symbol, interval)
// subscription. Windows are created on first use and dropped on unsubscribe.
type Windows struct {
	mu       sync.Mutex
	windows  map[string]*Window
	capacity int
}

// NewWindows creates the keyed set with a shared per-window capacity.
func NewWindows(capacity int) *Windows {
	return &Windows{windows: make(map[string]*Window), capacity: capacity}
}

func windowKey(symbol, interval string) string { return symbol + ":" + interval }

// Get returns the window for (symbol, interval), creating it if needed.
func (ws *Windows) Get(symbol, interval string) *Window {
	key := windowKey(symbol, interval)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	w, ok := ws.windows[key]
	if !ok {
		w = NewWindow(ws.capacity)
		ws.windows[key] = w
	}
	return w
}

// Drop removes the window for (symbol, interval) and its candles.
func (ws *Windows) Drop(symbol, interval string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.windows, windowKey(symbol, interval))
}
