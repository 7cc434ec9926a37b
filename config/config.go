package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Symbols to trade, comma-separated (e.g. "BTCUSDT,ETHUSDT,SOLUSDT")
	Symbols string

	// Timeframes
	TrendTimeframe string // higher TF used for trend direction (e.g. "1h")
	EntryTimeframe string // lower TF used for entry scoring (e.g. "15m")

	// Candle buffer bound per (symbol, timeframe)
	MaxCandles int

	// Paper account
	StartingBalance float64
	MinLeverage     int
	MaxLeverage     int

	// Feed mode: "stream" (websocket) or "poll" (REST polling fallback)
	FeedMode     string
	PollInterval int // seconds, polling fallback only

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Telegram alerting (optional, disabled when token empty)
	TelegramToken  string
	TelegramChatID string

	// Logging: "debug", "info", "warn", "error"
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols: getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT"),

		TrendTimeframe: getEnv("TREND_TF", "1h"),
		EntryTimeframe: getEnv("ENTRY_TF", "15m"),

		MaxCandles: getEnvInt("MAX_CANDLES", 500),

		StartingBalance: getEnvFloat("STARTING_BALANCE", 100000),
		MinLeverage:     getEnvInt("MIN_LEVERAGE", 10),
		MaxLeverage:     getEnvInt("MAX_LEVERAGE", 50),

		FeedMode:     getEnv("FEED_MODE", "stream"),
		PollInterval: getEnvInt("POLL_INTERVAL", 60),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSymbols parses the Symbols string into an uppercased, deduplicated slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	seen := make(map[string]bool, len(parts))
	syms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		syms = append(syms, p)
	}
	return syms
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
