// Command trader runs the live paper-trading pipeline: candle ingestion,
// signal evaluation, and simulated position management.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"papertrader/config"
	"papertrader/internal/candlestore"
	"papertrader/internal/ledger"
	"papertrader/internal/logger"
	"papertrader/internal/marketdata"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	redisstore "papertrader/internal/store/redis"
	"papertrader/internal/store/sqlite"
	"papertrader/internal/strategy"
	"papertrader/internal/trader"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv load failed", "error", err)
	}

	cfg := config.Load()
	logger.Init("papertrader", logger.ParseLevel(cfg.LogLevel))
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		slog.Error("no symbols configured")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := candlestore.New(cfg.MaxCandles)
	engine := strategy.NewEngine()
	led := ledger.New(ledger.DefaultConfig(cfg.StartingBalance, cfg.MinLeverage, cfg.MaxLeverage))
	sys := trader.New(trader.Config{
		TrendTimeframe: cfg.TrendTimeframe,
		EntryTimeframe: cfg.EntryTimeframe,
	}, store, engine, led)

	wireMetrics(engine, led, sys)
	alerts := wireNotifications(cfg, symbols, engine, led)
	journal := wireJournal(cfg, led)
	if journal != nil {
		defer journal.Close()
	}
	publisher := wirePublisher(ctx, cfg, engine, led, sys)
	if publisher != nil {
		defer publisher.Close()
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()

	history := marketdata.NewHistoryClient("")
	if err := sys.Bootstrap(ctx, history, symbols, cfg.MaxCandles); err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	feed := buildFeed(cfg, symbols, history, sys)
	feed.Subscribe(sys.OnCandle)
	feed.Subscribe(func(ev model.CandleEvent) {
		metrics.CandlesIngested.WithLabelValues(ev.Symbol, ev.Timeframe).Inc()
	})

	slog.Info("starting", "symbols", symbols, "mode", cfg.FeedMode,
		"balance", cfg.StartingBalance)

	err := feed.Run(ctx)
	if ctx.Err() == nil && err != nil {
		slog.Error("feed terminated", "error", err)
	}

	// open positions stay on the books; the summary reports realized P&L only
	stats := led.Stats()
	slog.Info("session summary",
		"trades", stats.TotalTrades, "wins", stats.Wins, "losses", stats.Losses,
		"pnl", stats.TotalPnL, "balance", stats.Balance,
		"open_positions", stats.OpenPositions)
	alerts.Summary(stats)
}

// buildFeed selects the websocket stream or the REST polling fallback.
func buildFeed(cfg *config.Config, symbols []string, history *marketdata.HistoryClient, sys *trader.System) marketdata.Feed {
	timeframes := []string{cfg.TrendTimeframe, cfg.EntryTimeframe}
	if cfg.FeedMode == "poll" {
		return marketdata.NewPollFeed(history, symbols, timeframes,
			time.Duration(cfg.PollInterval)*time.Second, cfg.MaxCandles)
	}

	feed := marketdata.NewStreamFeed(marketdata.StreamConfig{
		Symbols:    symbols,
		Timeframes: timeframes,
	})
	feed.OnReconnect = func(ctx context.Context) {
		metrics.FeedReconnects.Inc()
		// refill candles missed while disconnected
		if err := sys.Bootstrap(ctx, history, symbols, cfg.MaxCandles); err != nil {
			slog.Warn("gap backfill failed", "error", err)
		}
	}
	return feed
}

func wireMetrics(engine *strategy.Engine, led *ledger.Ledger, sys *trader.System) {
	engine.Subscribe(func(sig strategy.Signal) {
		metrics.SignalsEmitted.WithLabelValues(sig.Symbol, string(sig.Kind)).Inc()
	})
	led.OnOpen(func(ev ledger.OpenEvent) {
		metrics.TradesOpened.WithLabelValues(ev.Symbol, string(ev.Side)).Inc()
		metrics.OpenPositions.Inc()
	})
	led.OnClose(func(ev ledger.CloseEvent) {
		metrics.TradesClosed.WithLabelValues(ev.Symbol, string(ev.Reason)).Inc()
		metrics.OpenPositions.Dec()
	})
	sys.OnStats(func(s ledger.Stats) {
		metrics.Balance.Set(s.Balance)
	})
}

func wireNotifications(cfg *config.Config, symbols []string, engine *strategy.Engine, led *ledger.Ledger) *notification.AlertManager {
	var notifier notification.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifier = notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		slog.Info("telegram alerts enabled")
	}
	alerts := notification.NewAlertManager(notifier)
	alerts.Attach(engine, led)
	alerts.Startup(symbols, cfg.StartingBalance)
	return alerts
}

func wireJournal(cfg *config.Config, led *ledger.Ledger) *sqlite.Journal {
	if cfg.SQLitePath == "" {
		return nil
	}
	journal, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		slog.Warn("trade journal disabled", "error", err)
		return nil
	}
	led.OnClose(func(ev ledger.CloseEvent) {
		if err := journal.RecordTrade(ev.Trade); err != nil {
			slog.Warn("journal write failed", "symbol", ev.Symbol, "error", err)
		}
	})
	slog.Info("trade journal enabled", "path", cfg.SQLitePath)
	return journal
}

func wirePublisher(ctx context.Context, cfg *config.Config, engine *strategy.Engine, led *ledger.Ledger, sys *trader.System) *redisstore.Publisher {
	if cfg.RedisAddr == "" {
		return nil
	}
	publisher, err := redisstore.NewPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		slog.Warn("redis publishing disabled", "error", err)
		return nil
	}
	engine.Subscribe(func(sig strategy.Signal) {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.PublishSignal(pubCtx, sig); err != nil {
			slog.Warn("signal publish failed", "error", err)
		}
	})
	led.OnClose(func(ev ledger.CloseEvent) {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.PublishTrade(pubCtx, ev.Trade); err != nil {
			slog.Warn("trade publish failed", "error", err)
		}
	})
	sys.OnStats(func(s ledger.Stats) {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.PublishStats(pubCtx, s); err != nil {
			slog.Warn("stats publish failed", "error", err)
		}
	})
	slog.Info("redis publishing enabled", "addr", cfg.RedisAddr)
	return publisher
}
