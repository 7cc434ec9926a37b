package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"papertrader/internal/metrics"
	"papertrader/internal/model"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestStreamFeed_StopsAfterMaxRetries(t *testing.T) {
	f := NewStreamFeed(StreamConfig{
		URL:        "ws://127.0.0.1:1/stream", // nothing listens here
		Symbols:    []string{"BTCUSDT"},
		Timeframes: []string{"15m"},
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})

	err := f.Run(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if f.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", f.State())
	}
	if f.Retries() != 3 {
		t.Errorf("retries = %d, want 3", f.Retries())
	}
}

func TestStreamFeed_DeliversAndBacksOffOnMalformed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// successful dials reset the retry counter, so refuse the
		// handshake after two connections to let the budget run out
		if dials.Add(1) > 2 {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@kline_15m","data":{"e":"kline","k":{"t":1700000000000,"s":"BTCUSDT","i":"15m","o":"1","h":"2","l":"0.5","c":"1.5","v":"10","x":true}}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not even json`))
		// hold the connection open; the client tears it down
		time.Sleep(time.Second)
		conn.Close()
	}))
	defer ts.Close()

	f := NewStreamFeed(StreamConfig{
		URL:        wsURL(ts),
		Symbols:    []string{"BTCUSDT"},
		Timeframes: []string{"15m"},
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	})

	events := make(chan model.CandleEvent, 8)
	f.Subscribe(func(ev model.CandleEvent) { events <- ev })

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	select {
	case ev := <-events:
		if ev.Symbol != "BTCUSDT" || !ev.Closed || ev.Candle.Close != 1.5 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	// the malformed message forces a reconnect; with MaxRetries 2 the
	// second connection's malformed message exhausts the budget
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected terminal error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
	if dials.Load() < 2 {
		t.Errorf("dials = %d, want at least 2 (reconnect happened)", dials.Load())
	}
	if f.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", f.State())
	}
}

func TestStreamFeed_SilentConnectionReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if dials.Add(1) == 1 {
			// say nothing and ignore pings until well past the read
			// deadline; the client must treat this as a dead peer
			time.Sleep(500 * time.Millisecond)
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@kline_15m","data":{"e":"kline","k":{"t":1700000000000,"s":"BTCUSDT","i":"15m","o":"1","h":"2","l":"0.5","c":"1.5","v":"10","x":true}}}`))
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	f := NewStreamFeed(StreamConfig{
		URL:         wsURL(ts),
		Symbols:     []string{"BTCUSDT"},
		Timeframes:  []string{"15m"},
		MaxRetries:  5,
		BaseDelay:   time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
	})
	events := make(chan model.CandleEvent, 8)
	f.Subscribe(func(ev model.CandleEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	select {
	case ev := <-events:
		if ev.Symbol != "BTCUSDT" || ev.Candle.Close != 1.5 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("candle after a silent period was never delivered")
	}
	if dials.Load() < 2 {
		t.Errorf("dials = %d, want reconnect after silent connection", dials.Load())
	}
}

func TestStreamFeed_QuietStreamKeptAliveByPongs(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		dials.Add(1)
		// answer client pings with pongs (the read pump processes control
		// frames), staying quiet for several read-deadline periods before
		// the first data frame
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		time.Sleep(350 * time.Millisecond)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@kline_15m","data":{"e":"kline","k":{"t":1700000000000,"s":"BTCUSDT","i":"15m","o":"1","h":"2","l":"0.5","c":"1.5","v":"10","x":true}}}`))
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	f := NewStreamFeed(StreamConfig{
		URL:         wsURL(ts),
		Symbols:     []string{"BTCUSDT"},
		Timeframes:  []string{"15m"},
		MaxRetries:  5,
		BaseDelay:   time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
	})
	events := make(chan model.CandleEvent, 8)
	f.Subscribe(func(ev model.CandleEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	select {
	case ev := <-events:
		if ev.Candle.Close != 1.5 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event delivered from quiet-but-alive stream")
	}
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1 (no reconnect while pongs arrive)", dials.Load())
	}
}

func TestStreamFeed_ContextCancelStops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		time.Sleep(time.Second)
		conn.Close()
	}))
	defer ts.Close()

	f := NewStreamFeed(StreamConfig{
		URL:        wsURL(ts),
		Symbols:    []string{"BTCUSDT"},
		Timeframes: []string{"15m"},
		BaseDelay:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on cancel")
	}
	if f.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", f.State())
	}
}

func TestNotifier_FullBufferDropsAreCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.CandlesDropped)

	n := newNotifier(1)
	defer n.stop()
	block := make(chan struct{})
	n.subscribe(func(model.CandleEvent) { <-block })

	// one event can be in flight and one buffered; the rest must be
	// dropped and counted, never block the publisher
	for i := 0; i < 4; i++ {
		n.publish(model.CandleEvent{Symbol: "BTCUSDT", Timeframe: "15m"})
	}
	close(block)

	if n.dropped.Load() == 0 {
		t.Error("no drops recorded against a full buffer")
	}
	if delta := testutil.ToFloat64(metrics.CandlesDropped) - before; delta < 1 {
		t.Errorf("dropped metric delta = %v, want at least 1", delta)
	}
}

func klineRow(openTime int64, o, h, l, c, v string) string {
	return `[` + strconv.FormatInt(openTime, 10) + `,"` + o + `","` + h + `","` + l + `","` + c + `","` + v + `",0,"0",0,"0","0","0"]`
}

func TestPollFeed(t *testing.T) {
	body := `[` + strings.Join([]string{
		klineRow(1700000000000, "100", "101", "99", "100.5", "10"),
		klineRow(1700000900000, "100.5", "102", "100", "101.5", "12"),
		klineRow(1700001800000, "101.5", "103", "101", "102.5", "8"),
	}, ",") + `]`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			http.Error(w, "bad symbol", http.StatusBadRequest)
			return
		}
		w.Write([]byte(body))
	}))
	defer ts.Close()

	f := NewPollFeed(NewHistoryClient(ts.URL), []string{"BTCUSDT"}, []string{"15m"}, 20*time.Millisecond, 500)
	events := make(chan model.CandleEvent, 32)
	f.Subscribe(func(ev model.CandleEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	var closed, open int
	deadline := time.After(2 * time.Second)
	// first cycle: two completed candles then the forming one
	for closed < 2 || open < 1 {
		select {
		case ev := <-events:
			if ev.Closed {
				closed++
			} else {
				open++
				if ev.Candle.OpenTime != 1700001800000 {
					t.Errorf("open candle time = %d", ev.Candle.OpenTime)
				}
			}
		case <-deadline:
			t.Fatalf("timed out; closed=%d open=%d", closed, open)
		}
	}

	// later cycles must not replay completed candles already delivered
	replayDeadline := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			if ev.Closed {
				t.Fatalf("completed candle replayed: %d", ev.Candle.OpenTime)
			}
		case <-replayDeadline:
			return
		}
	}
}

func TestHistoryClient_Klines(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[` + klineRow(1700000000000, "42000", "42100", "41900", "42050", "55.5") + `]`))
	}))
	defer ts.Close()

	candles, err := NewHistoryClient(ts.URL).Klines(context.Background(), "BTCUSDT", "1h", 500)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("candles = %d, want 1", len(candles))
	}
	c := candles[0]
	if c.OpenTime != 1700000000000 || c.Open != 42000 || c.Volume != 55.5 {
		t.Errorf("candle = %+v", c)
	}
}

func TestHistoryClient_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer ts.Close()

	if _, err := NewHistoryClient(ts.URL).Klines(context.Background(), "BTCUSDT", "1h", 10); err == nil {
		t.Error("expected error on non-200 status")
	}
}
