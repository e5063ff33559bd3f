// Package gateway exposes the engine's event stream to WebSocket clients.
//
// The Hub consumes the internal event bus and fans every event out to all
// connected clients as a JSON envelope. A slow client is disconnected rather
// than allowed to backpressure the engine.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Paper trading runs locally; the dashboard origin is not restricted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the wire format sent to WebSocket clients.
type Envelope struct {
	Seq   int64           `json:"seq"`
	Type  model.EventType `json:"type"`
	TS    time.Time       `json:"ts"`
	Event json.RawMessage `json:"event"`
}

// Hub manages WebSocket clients and event fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     atomic.Int64

	// latest holds the most recent envelope per event type, sent to new
	// clients on connect so the dashboard renders without waiting.
	latest map[model.EventType][]byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[model.EventType][]byte),
	}
}

// Run consumes events from eventCh and broadcasts them until ctx is
// cancelled or the channel is closed.
func (h *Hub) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev model.Event) {
	env := Envelope{
		Seq:   h.seq.Add(1),
		Type:  ev.Type,
		TS:    ev.TS,
		Event: ev.JSON(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("[gateway] marshal envelope: %v", err)
		return
	}

	h.mu.Lock()
	h.latest[ev.Type] = payload
	var stale []*Client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Client can't keep up; drop it instead of blocking the bus.
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range stale {
		log.Printf("[gateway] dropped slow ws client")
		c.conn.Close()
	}
}

// HandleWS upgrades an HTTP request to WebSocket and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	snapshot := make([][]byte, 0, len(h.latest))
	for _, payload := range h.latest {
		snapshot = append(snapshot, payload)
	}
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	for _, payload := range snapshot {
		select {
		case client.send <- payload:
		default:
		}
	}

	go client.writePump()
	go client.readPump()
}

// removeClient unregisters a client after its pumps exit.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
