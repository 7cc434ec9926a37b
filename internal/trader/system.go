// Package trader wires the candle store, signal engine, and position
// ledger into one pipeline driven by feed events.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"papertrader/internal/candlestore"
	"papertrader/internal/ledger"
	"papertrader/internal/marketdata"
	"papertrader/internal/model"
	"papertrader/internal/strategy"
)

// StatsHandler receives an account snapshot after each processed candle.
type StatsHandler func(ledger.Stats)

// Config identifies the timeframes driving the two pipeline stages.
type Config struct {
	TrendTimeframe string
	EntryTimeframe string
}

// System consumes candle events and runs the evaluate-or-manage cycle:
// while a position is open for a symbol, entry candles only advance the
// exit rules; otherwise they are scored for a new entry.
type System struct {
	cfg    Config
	store  *candlestore.Store
	engine *strategy.Engine
	ledger *ledger.Ledger

	mu            sync.Mutex
	lastProcessed map[string]model.Candle
	statsHandlers []StatsHandler
}

// New builds a trading system over the given collaborators.
func New(cfg Config, store *candlestore.Store, engine *strategy.Engine, led *ledger.Ledger) *System {
	return &System{
		cfg:           cfg,
		store:         store,
		engine:        engine,
		ledger:        led,
		lastProcessed: make(map[string]model.Candle),
	}
}

// OnStats registers a handler for post-candle account snapshots.
func (s *System) OnStats(h StatsHandler) {
	s.mu.Lock()
	s.statsHandlers = append(s.statsHandlers, h)
	s.mu.Unlock()
}

// OnCandle is the feed subscription point. Forming candles update the
// store only; a completed entry-timeframe candle additionally triggers
// evaluation for its symbol. Redelivered identical candles are dropped so
// replays after a reconnect cannot double-trade.
func (s *System) OnCandle(ev model.CandleEvent) {
	s.store.Upsert(ev.Symbol, ev.Timeframe, ev.Candle)
	if !ev.Closed || ev.Timeframe != s.cfg.EntryTimeframe {
		return
	}

	s.mu.Lock()
	if prev, ok := s.lastProcessed[ev.Key()]; ok && prev.Equal(ev.Candle) {
		s.mu.Unlock()
		slog.Debug("duplicate candle ignored", "key", ev.Key(), "open_time", ev.Candle.OpenTime)
		return
	}
	s.lastProcessed[ev.Key()] = ev.Candle
	s.mu.Unlock()

	s.evaluate(ev.Symbol)
	s.pushStats()
}

// evaluate runs one decision cycle for a symbol against the stored series.
func (s *System) evaluate(symbol string) {
	entry, ok := s.store.Series(symbol, s.cfg.EntryTimeframe)
	if !ok || len(entry) == 0 {
		return
	}
	price := entry[len(entry)-1].Close

	if s.ledger.HasPosition(symbol) {
		if reason, closed := s.ledger.Update(symbol, price); closed {
			slog.Info("exit", "symbol", symbol, "reason", string(reason), "price", price)
		}
		return
	}

	trend, _ := s.store.Series(symbol, s.cfg.TrendTimeframe)
	sig := s.engine.Process(symbol, trend, entry)
	if sig.Actionable() {
		s.ledger.Open(sig)
	}
}

// Bootstrap seeds the store with history for every symbol so the engine
// has full lookback from the first live candle.
func (s *System) Bootstrap(ctx context.Context, client *marketdata.HistoryClient, symbols []string, limit int) error {
	for _, sym := range symbols {
		for _, tf := range []string{s.cfg.TrendTimeframe, s.cfg.EntryTimeframe} {
			candles, err := client.Klines(ctx, sym, tf, limit)
			if err != nil {
				return fmt.Errorf("bootstrap %s %s: %w", sym, tf, err)
			}
			for _, c := range candles {
				s.store.Upsert(sym, tf, c)
			}
			slog.Info("bootstrapped", "symbol", sym, "timeframe", tf, "candles", len(candles))
		}
	}
	return nil
}

func (s *System) pushStats() {
	s.mu.Lock()
	handlers := make([]StatsHandler, len(s.statsHandlers))
	copy(handlers, s.statsHandlers)
	s.mu.Unlock()
	if len(handlers) == 0 {
		return
	}
	stats := s.ledger.Stats()
	for _, h := range handlers {
		h(stats)
	}
}
