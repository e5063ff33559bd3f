// cmd/backtest replays historical candles through the signal generator and a
// simulated long-only account to evaluate strategy parameters without risking
// a live run.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTC/USDT --interval=1h --limit=500
//	go run ./cmd/backtest --csv=data/btc_1h.csv --strategy=config/strategy.yaml
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"papertrader/config"
	"papertrader/internal/backtest"
	"papertrader/internal/feed"
	"papertrader/internal/model"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "BTC/USDT", "Symbol to backtest")
	interval := flag.String("interval", "1h", "Candle interval (1m, 5m, 1h, 1d, ...)")
	limit := flag.Int("limit", 500, "Number of candles to fetch")
	source := flag.String("source", "binance", "Candle source: binance or static")
	csvPath := flag.String("csv", "", "Load candles from a CSV file instead of fetching (ts,open,high,low,close,volume)")
	strategyPath := flag.String("strategy", "", "Strategy YAML file (defaults when empty)")
	capital := flag.Float64("capital", 10000, "Initial capital in quote currency")
	commission := flag.Float64("commission", 0.001, "Commission per fill as a fraction of notional")
	jsonOut := flag.Bool("json", false, "Print the full result as JSON")
	flag.Parse()

	strat, err := config.LoadStrategy(*strategyPath)
	if err != nil {
		log.Fatalf("[backtest] strategy config: %v", err)
	}

	candles, err := loadCandles(*csvPath, *source, *symbol, *interval, *limit)
	if err != nil {
		log.Fatalf("[backtest] candle load failed: %v", err)
	}
	if len(candles) == 0 {
		log.Fatal("[backtest] no candles to replay")
	}
	log.Printf("[backtest] replaying %d candles for %s (%s ... %s)",
		len(candles), *symbol,
		candles[0].TS.Format("2006-01-02 15:04"),
		candles[len(candles)-1].TS.Format("2006-01-02 15:04"))

	cfg := backtest.Config{
		InitialCapital: *capital,
		Commission:     *commission,
		RiskPct:        strat.Risk.RiskPct,
		StopLossPct:    strat.Risk.StopLossPct,
		TakeProfitPct:  strat.Risk.TakeProfitPct,
		Strategy:       strat.Signal,
	}
	res, err := backtest.Run(cfg, candles)
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("[backtest] encode result: %v", err)
		}
		return
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Initial capital:  %-17.2f ║\n", res.InitialCapital)
	fmt.Printf("║  Final equity:     %-17.2f ║\n", res.FinalEquity)
	fmt.Printf("║  Total return:     %-16.2f%% ║\n", res.TotalReturnPct)
	fmt.Printf("║  Sharpe ratio:     %-17.2f ║\n", res.SharpeRatio)
	fmt.Printf("║  Max drawdown:     %-16.2f%% ║\n", res.MaxDrawdownPct)
	fmt.Printf("║  Trades:           %-17d ║\n", len(res.Trades))
	fmt.Printf("║  Win rate:         %-16.2f%% ║\n", res.WinRate)
	fmt.Printf("║  Profit factor:    %-17.2f ║\n", res.ProfitFactor)
	fmt.Println("╚══════════════════════════════════════╝")

	for i, t := range res.Trades {
		fmt.Printf("  #%-3d %s  entry %.2f @ %s  exit %.2f @ %s  pnl %+.2f  (%s)\n",
			i+1, t.Symbol,
			t.EntryPrice, t.EntryTime.Format("01-02 15:04"),
			t.ExitPrice, t.ExitTime.Format("01-02 15:04"),
			t.PnL, t.ExitReason)
	}
}

func loadCandles(csvPath, source, symbol, interval string, limit int) ([]model.Candle, error) {
	if csvPath != "" {
		return loadCSV(csvPath, symbol, interval)
	}

	var src feed.PriceSource
	switch source {
	case "static":
		src = feed.StaticSource{}
	default:
		src = feed.NewBinanceSource(10 * time.Second)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return src.Klines(ctx, symbol, interval, limit)
}

// loadCSV reads "ts,open,high,low,close,volume" rows, where ts is either a
// unix timestamp in seconds or RFC 3339. A header row is skipped.
func loadCSV(path, symbol, interval string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	var candles []model.Candle
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: want 6 columns, got %d", len(candles)+1, len(rec))
		}

		ts, err := parseTS(rec[0])
		if err != nil {
			if len(candles) == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("row %d: bad timestamp %q", len(candles)+1, rec[0])
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad value %q", len(candles)+1, rec[i+1])
			}
			vals[i] = v
		}
		candles = append(candles, model.Candle{
			Symbol:   symbol,
			Interval: interval,
			TS:       ts,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return candles, nil
}

func parseTS(s string) (time.Time, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
