// Package metrics exposes Prometheus metrics and a health endpoint for the
// trading engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	TicksTotal    *prometheus.CounterVec // labels: origin (live/cached/fallback)
	SignalsTotal  *prometheus.CounterVec // labels: action
	OrdersTotal   *prometheus.CounterVec // labels: status
	FillsTotal    prometheus.Counter
	AutoCloses    *prometheus.CounterVec // labels: reason
	EvalDur       prometheus.Histogram
	OpenPositions prometheus.Gauge
	RealizedPnL   prometheus.Gauge
	QuoteBalance  prometheus.Gauge

	// Transport/infra
	RingBufOverflow     prometheus.Counter
	BusDropsTotal       prometheus.Counter
	WSClients           prometheus.Gauge
	RedisBreakerState   prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips   prometheus.Counter
	RedisBufferedEvents prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_ticks_total",
			Help: "Price ticks served (by origin: live, cached, fallback)",
		}, []string{"origin"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_signals_total",
			Help: "Strategy signals emitted (by action)",
		}, []string{"action"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_orders_total",
			Help: "Order state transitions (by resulting status)",
		}, []string{"status"}),
		FillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_fills_total",
			Help: "Simulated order fills",
		}),
		AutoCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_auto_closes_total",
			Help: "Positions auto-closed (by reason)",
		}, []string{"reason"}),
		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_signal_eval_duration_seconds",
			Help:    "Signal evaluation latency per symbol",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_open_positions",
			Help: "Currently open positions",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_realized_pnl",
			Help: "Cumulative realized P&L in quote currency",
		}),
		QuoteBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_quote_balance",
			Help: "Current quote-currency balance",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped ticks)",
		}),
		BusDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_bus_drops_total",
			Help: "Events dropped by the bus for slow subscribers",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_redis_buffered_events_total",
			Help: "Events buffered locally during Redis circuit breaker open state",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.FillsTotal,
		m.AutoCloses,
		m.EvalDur,
		m.OpenPositions,
		m.RealizedPnL,
		m.QuoteBalance,
		m.RingBufOverflow,
		m.BusDropsTotal,
		m.WSClients,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
		m.RedisBufferedEvents,
	)

	return m
}

// HealthStatus represents the engine's health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedOK         bool      `json:"feed_ok"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedOK(v bool) {
	h.mu.Lock()
	h.FeedOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedOK          bool    `json:"feed_ok"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedOK:          h.FeedOK,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle registers an extra route (the engine mounts /ws here).
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.srv.Handler.(*http.ServeMux).Handle(pattern, handler)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
