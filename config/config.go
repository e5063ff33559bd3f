// Package config loads the runtime configuration: process settings from
// environment variables and the trading strategy from a YAML file.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Trading universe (comma-separated, e.g. "BTC/USDT,ETH/USDT")
	Symbols string

	// Market data
	FeedSource    string // "binance" or "static"
	PollInterval  time.Duration
	KlineInterval string
	EvalInterval  time.Duration // periodic strategy re-evaluation cadence

	// Paper account
	Account        string
	QuoteCurrency  string
	InitialBalance float64

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string

	// Strategy file (optional; defaults apply when missing)
	StrategyPath string

	// Notifications (optional; disabled when empty)
	WebhookURL string

	// Logging (optional; stdout only when empty)
	LogFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols: getEnv("SYMBOLS", "BTC/USDT,ETH/USDT"),

		FeedSource:    getEnv("FEED_SOURCE", "binance"),
		PollInterval:  getEnvDuration("POLL_INTERVAL", 5*time.Second),
		KlineInterval: getEnv("KLINE_INTERVAL", "1m"),
		EvalInterval:  getEnvDuration("EVAL_INTERVAL", 30*time.Second),

		Account:        getEnv("ACCOUNT", "default"),
		QuoteCurrency:  getEnv("QUOTE_CURRENCY", "USDT"),
		InitialBalance: getEnvFloat("INITIAL_BALANCE", 10000),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/papertrader.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/fills.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		StrategyPath: getEnv("STRATEGY_PATH", ""),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		LogFile: getEnv("LOG_FILE", ""),
	}
}

// ParseSymbols splits the Symbols string into a deduplicated slice of
// normalized "BASE/QUOTE" pairs.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	seen := make(map[string]bool, len(parts))
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.ToUpper(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			log.Printf("[config] skipping invalid symbol: %q", p)
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	return symbols
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
