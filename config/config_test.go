package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SYMBOLS", "POLL_INTERVAL", "INITIAL_BALANCE", "METRICS_ADDR"} {
		os.Unsetenv(key)
	}
	cfg := Load()
	if cfg.Symbols != "BTC/USDT,ETH/USDT" {
		t.Errorf("Symbols = %q", cfg.Symbols)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.InitialBalance != 10000 {
		t.Errorf("InitialBalance = %v", cfg.InitialBalance)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.EvalInterval != 30*time.Second {
		t.Errorf("EvalInterval = %v", cfg.EvalInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYMBOLS", "SOL/USDT")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("INITIAL_BALANCE", "2500.5")
	cfg := Load()
	if cfg.Symbols != "SOL/USDT" {
		t.Errorf("Symbols = %q", cfg.Symbols)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.InitialBalance != 2500.5 {
		t.Errorf("InitialBalance = %v", cfg.InitialBalance)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("INITIAL_BALANCE", "lots")
	cfg := Load()
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}
	if cfg.InitialBalance != 10000 {
		t.Errorf("InitialBalance = %v, want default", cfg.InitialBalance)
	}
}

func TestParseSymbols(t *testing.T) {
	cfg := &Config{Symbols: " btc/usdt ,ETH/USDT,,BTC/USDT,garbage"}
	got := cfg.ParseSymbols()
	want := []string{"BTC/USDT", "ETH/USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSymbols() = %v, want %v", got, want)
	}
}

func TestLoadStrategyDefaultsWhenUnset(t *testing.T) {
	strat, err := LoadStrategy("")
	if err != nil {
		t.Fatalf("LoadStrategy: %v", err)
	}
	if strat.Risk.RiskPct != 0.02 {
		t.Errorf("RiskPct = %v", strat.Risk.RiskPct)
	}
	if strat.Signal.Threshold != 0.5 {
		t.Errorf("Threshold = %v", strat.Signal.Threshold)
	}
	if strat.SlippageBps != 5 {
		t.Errorf("SlippageBps = %v", strat.SlippageBps)
	}
}

func TestLoadStrategyOverlaysDefaults(t *testing.T) {
	path := writeStrategy(t, `
signal:
  threshold: 0.6
risk:
  risk_pct: 0.01
slippage_bps: 2
`)
	strat, err := LoadStrategy(path)
	if err != nil {
		t.Fatalf("LoadStrategy: %v", err)
	}
	if strat.Signal.Threshold != 0.6 {
		t.Errorf("Threshold = %v, want 0.6", strat.Signal.Threshold)
	}
	if strat.Risk.RiskPct != 0.01 {
		t.Errorf("RiskPct = %v, want 0.01", strat.Risk.RiskPct)
	}
	if strat.SlippageBps != 2 {
		t.Errorf("SlippageBps = %v, want 2", strat.SlippageBps)
	}
	// Untouched sections keep their defaults.
	if strat.Risk.MaxDailyOrders != 100 {
		t.Errorf("MaxDailyOrders = %v, want default 100", strat.Risk.MaxDailyOrders)
	}
	if strat.Signal.EMAFast != 20 {
		t.Errorf("EMAFast = %v, want default 20", strat.Signal.EMAFast)
	}
}

func TestLoadStrategyRejectsUnknownKeys(t *testing.T) {
	path := writeStrategy(t, `
signal:
  treshold: 0.6
`)
	if _, err := LoadStrategy(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadStrategyRejectsInvalidValues(t *testing.T) {
	path := writeStrategy(t, `
risk:
  risk_pct: 0.5
`)
	if _, err := LoadStrategy(path); err == nil {
		t.Fatal("expected validation error for risk_pct above cap")
	}
}

func TestLoadStrategyMissingFile(t *testing.T) {
	if _, err := LoadStrategy(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func writeStrategy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
