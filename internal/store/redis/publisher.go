// Package redis publishes trading events and signals to Redis so external
// consumers (dashboards, alerting) can follow a session live. Events go out
// on PubSub for fan-out and on a capped stream for short-term replay.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/model"
)

const (
	// Stream trimming: enough for a full trading day of events
	eventStreamMaxLen = 50000
	latestSignalTTL   = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes events and signals to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Run consumes events from eventCh and publishes them until ctx is cancelled
// or the channel is closed.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.publishEvent(ctx, ev)
		}
	}
}

// publishEvent fans the event out with errors logged, not propagated: a
// Redis outage must never stall the trading loop.
func (p *Publisher) publishEvent(ctx context.Context, ev model.Event) {
	if err := p.PublishEvent(ctx, ev); err != nil {
		log.Printf("[redis] publish %s event: %v", ev.Type, err)
	}
}

// PublishEvent fans a single event out on PubSub and appends it to the capped
// event stream, in one pipeline roundtrip. The circuit-breaker wrapper uses
// this path.
func (p *Publisher) PublishEvent(ctx context.Context, ev model.Event) error {
	payload := ev.JSON()

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, "pub:events:"+string(ev.Type), payload)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "stream:events",
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(ev.Type),
			"account": ev.Account,
			"data":    payload,
		},
	})
	if sig, ok := ev.Data.(model.StrategySignal); ok {
		// Latest-signal key lets consumers poll without replaying the stream.
		pipe.Set(ctx, "latest:signal:"+sig.Symbol, sig.JSON(), latestSignalTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
