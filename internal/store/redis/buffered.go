package redis

import (
	"context"
	"log"
	"sync"

	"papertrader/internal/model"
)

// BufferedPublisher wraps a Publisher with a circuit breaker.
// During circuit-open state, events are buffered locally and flushed when the
// circuit closes again, so a Redis outage drops nothing until the local
// buffer itself overflows.
type BufferedPublisher struct {
	publisher *Publisher
	cb        *CircuitBreaker
	ctx       context.Context

	mu     sync.Mutex
	buffer []model.Event
	maxBuf int // max buffered events before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when an event is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered events
}

// NewBufferedPublisher creates a BufferedPublisher wrapping the given Publisher.
func NewBufferedPublisher(ctx context.Context, p *Publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		publisher: p,
		cb:        cb,
		ctx:       ctx,
		buffer:    make([]model.Event, 0, 256),
		maxBuf:    maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}

	return bp
}

// Publish sends an event through the circuit breaker. If the circuit is
// open, the event is buffered locally instead of being lost.
func (bp *BufferedPublisher) Publish(ev model.Event) error {
	err := bp.cb.Execute(func() error {
		return bp.publisher.PublishEvent(bp.ctx, ev)
	})
	if err == ErrCircuitOpen {
		bp.bufferEvent(ev)
		return nil // buffered, not lost
	}
	return err
}

// Run consumes events from eventCh and publishes them through the breaker
// until ctx is cancelled or the channel is closed.
func (bp *BufferedPublisher) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if err := bp.Publish(ev); err != nil {
				log.Printf("[buffered-publisher] publish %s: %v", ev.Type, err)
			}
		}
	}
}

func (bp *BufferedPublisher) bufferEvent(ev model.Event) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// Buffer full — drop oldest
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, ev)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays all buffered events through the underlying publisher.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bp.buffer
	bp.buffer = make([]model.Event, 0, 256)
	bp.mu.Unlock()

	for _, ev := range toFlush {
		bp.publisher.publishEvent(bp.ctx, ev)
	}

	log.Printf("[buffered-publisher] flushed %d buffered events", len(toFlush))
	if bp.OnFlush != nil {
		bp.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Underlying returns the wrapped publisher for direct access.
func (bp *BufferedPublisher) Underlying() *Publisher {
	return bp.publisher
}
