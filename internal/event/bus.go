// Package event provides an in-process multicast bus for order, position,
// balance, signal, and error updates.
//
// Publishers serialize per account (the executor and ledger hold per-account
// locks while publishing), so subscribers observe FIFO ordering within one
// event type per account. If a subscriber channel is full, the event is
// dropped for that subscriber to prevent a slow consumer from blocking the
// pipeline.
package event

import (
	"log"
	"sync"
	"time"

	"papertrader/internal/model"
)

// Bus broadcasts events to N subscriber channels.
type Bus struct {
	mu      sync.RWMutex
	subs    []chan model.Event
	bufSize int
	closed  bool

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a Bus with the given buffer size for subscriber channels.
func New(bufferSize int) *Bus {
	return &Bus{bufSize: bufferSize}
}

// Subscribe creates and returns a new subscriber channel.
func (b *Bus) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, b.bufSize)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish multicasts ev to all subscribers without blocking. Returns the
// number of subscribers that received the event.
func (b *Bus) Publish(ev model.Event) int {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}

	delivered := 0
	for i, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			if b.OnDrop != nil {
				b.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping %s event for %s", i, ev.Type, ev.Account)
			}
		}
	}
	return delivered
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
}
