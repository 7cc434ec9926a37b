package marketdata

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"papertrader/internal/model"
)

// PollFeed refetches recent klines over REST on a fixed interval. It is
// the fallback transport for environments where the websocket stream
// is unreachable; latency is bounded by the poll interval.
type PollFeed struct {
	client     *HistoryClient
	symbols    []string
	timeframes []string
	interval   time.Duration
	limit      int
	state      atomic.Int32
	notifier   *notifier

	// lastClosed tracks the newest completed candle delivered per
	// series, so a poll cycle only emits candles it has not yet seen.
	lastClosed map[string]int64
}

// NewPollFeed builds a polling feed. limit is the number of candles
// fetched per series each cycle.
func NewPollFeed(client *HistoryClient, symbols, timeframes []string, interval time.Duration, limit int) *PollFeed {
	return &PollFeed{
		client:     client,
		symbols:    symbols,
		timeframes: timeframes,
		interval:   interval,
		limit:      limit,
		notifier:   newNotifier(defaultEventBuffer),
		lastClosed: make(map[string]int64),
	}
}

// State returns the feed state; a polling feed is either streaming or
// stopped.
func (f *PollFeed) State() State {
	return State(f.state.Load())
}

// Subscribe registers a handler for candle events.
func (f *PollFeed) Subscribe(h Handler) {
	f.notifier.subscribe(h)
}

// Run polls until the context is cancelled. Fetch errors are logged and
// retried on the next tick rather than stopping the feed.
func (f *PollFeed) Run(ctx context.Context) error {
	defer f.state.Store(int32(StateStopped))
	defer f.notifier.stop()
	f.state.Store(int32(StateStreaming))

	f.cycle(ctx)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.cycle(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *PollFeed) cycle(ctx context.Context) {
	for _, sym := range f.symbols {
		for _, tf := range f.timeframes {
			candles, err := f.client.Klines(ctx, sym, tf, f.limit)
			if err != nil {
				slog.Warn("poll failed", "symbol", sym, "timeframe", tf, "error", err)
				continue
			}
			f.emit(sym, tf, candles)
		}
	}
}

// emit publishes the newly completed candles for one series, oldest
// first, then the still-forming last candle as an open update.
func (f *PollFeed) emit(symbol, timeframe string, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	key := symbol + ":" + timeframe
	seen := f.lastClosed[key]

	last := len(candles) - 1
	for _, c := range candles[:last] {
		if c.OpenTime <= seen {
			continue
		}
		f.notifier.publish(model.CandleEvent{
			Symbol: symbol, Timeframe: timeframe, Candle: c, Closed: true,
		})
		f.lastClosed[key] = c.OpenTime
	}
	f.notifier.publish(model.CandleEvent{
		Symbol: symbol, Timeframe: timeframe, Candle: candles[last], Closed: false,
	})
}
