// Package metrics exposes Prometheus instrumentation for the trading
// pipeline and a small HTTP server for scraping.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandlesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrader_candles_ingested_total",
		Help: "Candles received from the feed, by symbol and timeframe.",
	}, []string{"symbol", "timeframe"})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrader_feed_reconnects_total",
		Help: "Successful websocket reconnections.",
	})

	CandlesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrader_candles_dropped_total",
		Help: "Candle events dropped because the dispatch buffer was full.",
	})

	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrader_signals_total",
		Help: "Actionable signals emitted, by symbol and kind.",
	}, []string{"symbol", "kind"})

	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrader_trades_opened_total",
		Help: "Positions opened, by symbol and side.",
	}, []string{"symbol", "side"})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrader_trades_closed_total",
		Help: "Positions closed, by symbol and exit reason.",
	}, []string{"symbol", "reason"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrader_open_positions",
		Help: "Currently open positions.",
	})

	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrader_balance",
		Help: "Current account balance.",
	})
)

// Serve runs the metrics endpoint until the context is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("metrics listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
