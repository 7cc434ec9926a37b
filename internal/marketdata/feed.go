// Package marketdata ingests candles from the exchange, either over a
// websocket kline stream or by periodic REST polling, and fans completed
// updates out to subscribers.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"papertrader/internal/metrics"
	"papertrader/internal/model"
)

// Handler receives candle events in arrival order.
type Handler func(model.CandleEvent)

// State is the connection lifecycle state of a feed.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateBackoff:
		return "BACKOFF"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Feed is a source of candle events.
type Feed interface {
	Run(ctx context.Context) error
	State() State
	Subscribe(Handler)
}

// notifier serializes event delivery: events are queued onto a single
// channel and a dispatch goroutine hands them to every handler in order,
// so subscribers never see candles out of sequence.
type notifier struct {
	mu       sync.RWMutex
	handlers []Handler
	events   chan model.CandleEvent
	done     chan struct{}
	once     sync.Once
	dropped  atomic.Int64
}

func newNotifier(buffer int) *notifier {
	n := &notifier{
		events: make(chan model.CandleEvent, buffer),
		done:   make(chan struct{}),
	}
	go n.dispatch()
	return n
}

func (n *notifier) subscribe(h Handler) {
	n.mu.Lock()
	n.handlers = append(n.handlers, h)
	n.mu.Unlock()
}

func (n *notifier) publish(ev model.CandleEvent) {
	select {
	case n.events <- ev:
	default:
		n.dropped.Add(1)
		metrics.CandlesDropped.Inc()
		slog.Warn("event buffer full, dropping candle", "key", ev.Key())
	}
}

func (n *notifier) dispatch() {
	for {
		select {
		case ev := <-n.events:
			n.mu.RLock()
			handlers := n.handlers
			n.mu.RUnlock()
			for _, h := range handlers {
				deliver(h, ev)
			}
		case <-n.done:
			return
		}
	}
}

func deliver(h Handler, ev model.CandleEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("candle handler panicked", "key", ev.Key(), "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

func (n *notifier) stop() {
	n.once.Do(func() { close(n.done) })
}
