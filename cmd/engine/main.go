package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/config"
	"papertrader/internal/event"
	"papertrader/internal/execution"
	"papertrader/internal/feed"
	"papertrader/internal/gateway"
	"papertrader/internal/ledger"
	"papertrader/internal/logger"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	"papertrader/internal/ringbuf"
	"papertrader/internal/risk"
	strategy "papertrader/internal/signal"
	redisstore "papertrader/internal/store/redis"
	sqlitestore "papertrader/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[engine] starting...")

	// ---- Load config from env + strategy file ----
	cfg := config.Load()
	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatalf("[engine] strategy config: %v", err)
	}
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatalf("[engine] no valid symbols configured (SYMBOLS=%q)", cfg.Symbols)
	}

	if cfg.LogFile != "" {
		logger.InitWithFile("engine", slog.LevelInfo, cfg.LogFile)
	} else {
		logger.Init("engine", slog.LevelInfo)
	}

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Event bus ----
	prom := metrics.NewMetrics()
	bus := event.New(1024)
	bus.OnDrop = func(int) {
		prom.BusDropsTotal.Inc()
	}

	// ---- SQLite store + fill journal (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[engine] sqlite init failed: %v", err)
	}
	defer store.Close()
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[engine] journal init failed: %v", err)
	}
	defer journal.Close()
	log.Println("[engine] sqlite store ready")

	// ---- Metrics & health ----
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)

	// ---- WebSocket gateway ----
	hub := gateway.NewHub()
	metricsSrv.Handle("/ws", http.HandlerFunc(hub.HandleWS))
	go hub.Run(ctx, bus.Subscribe())
	metricsSrv.Start()

	// ---- Redis publisher behind a circuit breaker (optional) ----
	var redisPub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		redisPub, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[engine] WARNING: redis init failed: %v (continuing without redis)", err)
			redisPub = nil
		}
	}
	if redisPub != nil {
		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisBreakerTrips.Inc()
			}
		}
		buffered := redisstore.NewBufferedPublisher(ctx, redisPub, cb, 10000)
		buffered.OnBuffer = func() {
			prom.RedisBufferedEvents.Inc()
		}
		go buffered.Run(ctx, bus.Subscribe())
		log.Println("[engine] redis publisher ready")
	}

	// ---- Periodic liveness checks ----
	var redisClient *goredis.Client
	if redisPub != nil {
		redisClient = redisPub.Client()
	}
	health.StartLivenessChecker(ctx, redisClient, store.DB(), 10*time.Second)

	// ---- Notifications ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL, 5*time.Second)
	}

	// ---- Ledger (positions + balances) ----
	led := ledger.New(ledger.Config{
		StopLossPct:   strat.Risk.StopLossPct,
		TakeProfitPct: strat.Risk.TakeProfitPct,
		FeeRate:       strat.Risk.FeeRate,
	}, bus, store)
	led.OnAutoClose = func(pos model.Position) {
		prom.AutoCloses.WithLabelValues(pos.ExitReason).Inc()
		if err := notifier.Send(ctx, notification.PositionClosed(pos)); err != nil {
			log.Printf("[engine] notification failed: %v", err)
		}
	}

	// Restore balances from a previous run; otherwise seed the paper account.
	balances, err := store.Balances(cfg.Account)
	if err != nil {
		log.Fatalf("[engine] balance restore failed: %v", err)
	}
	if len(balances) == 0 {
		led.SetBalance(cfg.Account, cfg.QuoteCurrency, cfg.InitialBalance)
		log.Printf("[engine] seeded account %q with %.2f %s", cfg.Account, cfg.InitialBalance, cfg.QuoteCurrency)
	} else {
		for currency, amount := range balances {
			led.SetBalance(cfg.Account, currency, amount)
		}
		log.Printf("[engine] restored %d balances for account %q", len(balances), cfg.Account)
	}

	// ---- Market data: poller + fallback chain ----
	var primary, alternate feed.PriceSource
	switch cfg.FeedSource {
	case "static":
		primary = feed.StaticSource{}
	default:
		primary = feed.NewBinanceSource(5 * time.Second)
		alternate = feed.NewBinanceSource(10 * time.Second)
	}
	poller := feed.NewPoller(primary, alternate, feed.PollerConfig{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollInterval,
	})
	defer poller.Close()

	// ---- Executor ----
	exec := execution.New(execution.Config{
		SlippageBps:    strat.SlippageBps,
		FeeRate:        strat.Risk.FeeRate,
		MaxOrderSize:   strat.Risk.MaxOrderSize,
		MaxDailyOrders: strat.Risk.MaxDailyOrders,
	}, poller, led, bus, journal)

	// ---- Signal generator ----
	gen, err := strategy.New(strat.Signal, bus)
	if err != nil {
		log.Fatalf("[engine] signal generator: %v", err)
	}

	// ---- Candle windows seeded from historical klines ----
	windows := feed.NewWindows(strat.Signal.HistorySize + strat.Signal.Warmup)
	for _, s := range symbols {
		candles, err := poller.Klines(ctx, s, cfg.KlineInterval, strat.Signal.Warmup)
		if err != nil {
			log.Printf("[engine] kline seed failed for %s: %v", s, err)
			continue
		}
		windows.Get(s, cfg.KlineInterval).Replace(candles)
		log.Printf("[engine] seeded %d %s candles for %s", len(candles), cfg.KlineInterval, s)
	}

	// ---- Persistence + metrics consumer (off hot path) ----
	go consumeEvents(ctx, bus.Subscribe(), store, notifier, prom)

	// ---- Tick pipeline: poller → ring buffer → trade loop ----
	ring := ringbuf.New(4096)
	poller.OnTick = func(t model.PriceTick) {
		prom.TicksTotal.WithLabelValues(string(t.Origin)).Inc()
		health.SetLastTickTime(t.TS)
		health.SetFeedOK(t.Origin != model.OriginFallback)
		ring.Push(t)
	}
	go tradeLoop(ctx, tradeDeps{
		ring:      ring,
		exec:      exec,
		led:       led,
		gen:       gen,
		windows:   windows,
		agg:       feed.NewAggregator(cfg.KlineInterval),
		prom:      prom,
		account:   cfg.Account,
		quote:     cfg.QuoteCurrency,
		interval:  cfg.KlineInterval,
		evalEvery: cfg.EvalInterval,
		lastEval:  make(map[string]time.Time),
		limits:    strat.Risk,
	})

	// ---- Periodic gauge refresh ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		var lastOverflow uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summary := led.GetSummary(cfg.Account)
				prom.OpenPositions.Set(float64(summary.OpenPositions))
				prom.RealizedPnL.Set(summary.RealizedPnL)
				prom.QuoteBalance.Set(led.Balance(cfg.Account, cfg.QuoteCurrency))
				prom.WSClients.Set(float64(hub.ClientCount()))
				if of := ring.Overflow(); of > lastOverflow {
					prom.RingBufOverflow.Add(float64(of - lastOverflow))
					lastOverflow = of
				}
			}
		}
	}()

	// ---- Start polling ----
	for _, s := range symbols {
		poller.Subscribe(ctx, s)
	}

	log.Println("[engine] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[engine] ║  Paper Trading Engine                                    ║")
	log.Println("[engine] ║                                                          ║")
	log.Println("[engine] ║  [Feed Poller] → [Signals] → [Executor] → [Ledger]       ║")
	log.Printf("[engine] ║  Symbols: %-46v ║", symbols)
	log.Printf("[engine] ║  Feed: %-8s  Poll: %-6v  Account: %-12s    ║", cfg.FeedSource, cfg.PollInterval, cfg.Account)
	log.Println("[engine] ╚══════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[engine] shutdown signal received, cleaning up...")
	cancel()
	poller.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisPub != nil {
		redisPub.Close()
	}
	bus.Close()
	log.Println("[engine] shutdown complete.")
}

// consumeEvents persists order updates and feeds the event-driven metrics.
// It runs off the hot path so a slow disk never stalls the trade loop.
func consumeEvents(ctx context.Context, events <-chan model.Event, store *sqlitestore.Store, notifier notification.Notifier, prom *metrics.Metrics) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case model.EventOrderUpdate:
				o, ok := ev.Data.(model.Order)
				if !ok {
					continue
				}
				prom.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
				if o.Status == model.StatusFilled {
					prom.FillsTotal.Inc()
				}
				if o.Status == model.StatusRejected {
					if err := notifier.Send(ctx, notification.OrderRejected(o)); err != nil {
						log.Printf("[engine] notification failed: %v", err)
					}
				}
				if err := store.SaveOrder(&o); err != nil {
					log.Printf("[engine] order persist failed for %s: %v", o.ID, err)
				}
			case model.EventSignal:
				if sig, ok := ev.Data.(model.StrategySignal); ok {
					prom.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
				}
			}
		}
	}
}

type tradeDeps struct {
	ring      *ringbuf.Ring
	exec      *execution.Executor
	led       *ledger.Ledger
	gen       *strategy.Generator
	windows   *feed.Windows
	agg       *feed.Aggregator
	prom      *metrics.Metrics
	account   string
	quote     string
	interval  string
	evalEvery time.Duration
	lastEval  map[string]time.Time
	limits    risk.Limits
}

// tradeLoop drains the tick ring buffer. For every tick it fires resting
// order triggers, marks open positions (stop-loss/take-profit run here),
// extends the candle window, and evaluates the strategy.
func tradeLoop(ctx context.Context, d tradeDeps) {
	idle := time.NewTicker(10 * time.Millisecond)
	defer idle.Stop()

	for {
		tick, ok := d.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		handleTick(ctx, d, tick)
	}
}

func handleTick(ctx context.Context, d tradeDeps, tick model.PriceTick) {
	// Resting orders and protective closes see the same price, in that order,
	// so a stop order fires before the position it protects is marked.
	d.exec.CheckTriggers(tick.Symbol, tick.Price)
	d.led.OnPriceTick(tick.Symbol, tick.Price)

	// Ticks only reach the window as completed interval bars; the forming
	// bucket stays inside the aggregator.
	w := d.windows.Get(tick.Symbol, d.interval)
	closed, barDone := d.agg.Add(tick)
	if barDone {
		w.Append(closed)
	}

	// The strategy runs on bar close and on the periodic cadence, whichever
	// comes first.
	if !barDone && time.Since(d.lastEval[tick.Symbol]) < d.evalEvery {
		return
	}
	d.lastEval[tick.Symbol] = time.Now()

	start := time.Now()
	sig, err := d.gen.Evaluate(tick.Symbol, w.Snapshot())
	d.prom.EvalDur.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[engine] evaluate %s: %v", tick.Symbol, err)
		return
	}
	if sig == nil || sig.Action == model.ActionHold {
		return
	}

	qty := orderQty(d, tick, sig.Action)
	if qty <= 0 {
		return
	}

	side := model.SideBuy
	if sig.Action == model.ActionSell {
		side = model.SideSell
	}
	if _, err := d.exec.PlaceOrder(ctx, model.OrderIntent{
		Account: d.account,
		Symbol:  tick.Symbol,
		Side:    side,
		Type:    model.OrderMarket,
		Qty:     qty,
		TIF:     model.TIFGoodTillCancel,
	}); err != nil {
		log.Printf("[engine] order rejected for %s: %v", tick.Symbol, err)
	}
}

// orderQty sizes the order for a signal. A signal against an open position
// closes it (plus a fresh risk-sized entry in the opposite direction); a
// signal in the direction of an open position is ignored.
func orderQty(d tradeDeps, tick model.PriceTick, action model.Action) float64 {
	pos, open := d.led.OpenPosition(d.account, tick.Symbol)
	if open {
		sameDirection := (action == model.ActionBuy && pos.Side == model.PositionLong) ||
			(action == model.ActionSell && pos.Side == model.PositionShort)
		if sameDirection {
			return 0
		}
	}

	balance := d.led.Balance(d.account, d.quote)
	qty, err := risk.Size(balance, d.limits.RiskPct, tick.Price, d.limits.StopLossPct)
	if err != nil {
		log.Printf("[engine] sizing failed for %s: %v", tick.Symbol, err)
		qty = 0
	}
	if action == model.ActionBuy {
		// Cap the entry so the buy cannot exceed the spendable balance.
		if maxAffordable := balance / (tick.Price * (1 + d.limits.FeeRate)); qty > maxAffordable {
			qty = maxAffordable
		}
	}
	if open {
		qty += pos.Qty
	}
	return qty
}
