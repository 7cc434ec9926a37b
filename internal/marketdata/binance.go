package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/model"
)

const (
	// DefaultStreamURL is the Binance futures combined-stream endpoint.
	DefaultStreamURL = "wss://fstream.binance.com/stream"

	defaultMaxRetries  = 5
	defaultBaseDelay   = 2 * time.Second
	defaultReadTimeout = 30 * time.Second
	defaultEventBuffer = 256

	// writeWait bounds control-frame writes.
	writeWait = 5 * time.Second
)

// StreamConfig configures a websocket candle feed.
type StreamConfig struct {
	URL         string
	Symbols     []string
	Timeframes  []string
	MaxRetries  int
	BaseDelay   time.Duration
	ReadTimeout time.Duration
}

func (c *StreamConfig) withDefaults() {
	if c.URL == "" {
		c.URL = DefaultStreamURL
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
}

// StreamFeed maintains a websocket subscription to kline streams and
// republishes parsed candle events. Connection faults trigger exponential
// backoff; after MaxRetries consecutive failures the feed stops for good.
type StreamFeed struct {
	cfg      StreamConfig
	state    atomic.Int32
	retries  atomic.Int32
	notifier *notifier

	// OnReconnect is invoked after every successful (re)connect, before
	// the first message is read. Used to backfill candles missed while
	// disconnected.
	OnReconnect func(ctx context.Context)
}

// NewStreamFeed builds a feed for the given symbol/timeframe pairs.
func NewStreamFeed(cfg StreamConfig) *StreamFeed {
	cfg.withDefaults()
	return &StreamFeed{
		cfg:      cfg,
		notifier: newNotifier(defaultEventBuffer),
	}
}

// State returns the current connection state.
func (f *StreamFeed) State() State {
	return State(f.state.Load())
}

// Retries returns the consecutive failure count since the last good connect.
func (f *StreamFeed) Retries() int {
	return int(f.retries.Load())
}

// Subscribe registers a handler for candle events.
func (f *StreamFeed) Subscribe(h Handler) {
	f.notifier.subscribe(h)
}

func (f *StreamFeed) streamURL() string {
	names := make([]string, 0, len(f.cfg.Symbols)*len(f.cfg.Timeframes))
	for _, sym := range f.cfg.Symbols {
		for _, tf := range f.cfg.Timeframes {
			names = append(names, StreamName(sym, tf))
		}
	}
	return f.cfg.URL + "?streams=" + strings.Join(names, "/")
}

// Run drives the connect/stream/backoff loop until the context is
// cancelled or the retry budget is exhausted. It always leaves the feed
// in StateStopped.
func (f *StreamFeed) Run(ctx context.Context) error {
	defer f.state.Store(int32(StateStopped))
	defer f.notifier.stop()

	url := f.streamURL()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.state.Store(int32(StateConnecting))
		slog.Info("connecting", "url", url, "attempt", f.retries.Load()+1)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			f.retries.Store(0)
			f.state.Store(int32(StateStreaming))
			slog.Info("streaming", "streams", len(f.cfg.Symbols)*len(f.cfg.Timeframes))
			if f.OnReconnect != nil {
				f.OnReconnect(ctx)
			}
			err = f.readLoop(ctx, conn)
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("stream interrupted", "error", err)
		} else {
			slog.Warn("dial failed", "error", err)
		}

		n := f.retries.Add(1)
		if int(n) >= f.cfg.MaxRetries {
			slog.Error("retry budget exhausted", "retries", n)
			return fmt.Errorf("feed stopped after %d consecutive failures: %w", n, err)
		}

		delay := f.cfg.BaseDelay << (n - 1)
		f.state.Store(int32(StateBackoff))
		slog.Info("backing off", "delay", delay, "retry", n)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readLoop reads messages until the connection fails or the context is
// cancelled. Liveness is probed from the write side: a ticker goroutine
// sends pings and each pong (or message) extends the read deadline, so a
// healthy-but-quiet stream never expires. A deadline that does expire
// means the peer stopped answering; the resulting read error feeds the
// backoff path. A websocket read error is permanent, so the connection is
// never read again after one.
func (f *StreamFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	}
	if err := extend(); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(appData string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go f.keepalive(conn, stop)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := extend(); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		ev, ok, err := ParseKline(raw)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		f.publish(ev)
	}
}

// keepalive pings on a cadence well inside the read deadline; a failed
// write ends the probe and leaves the blocked read to time out.
func (f *StreamFeed) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	interval := f.cfg.ReadTimeout / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("keepalive ping failed", "error", err)
				return
			}
		case <-stop:
			return
		}
	}
}

func (f *StreamFeed) publish(ev model.CandleEvent) {
	f.notifier.publish(ev)
}
