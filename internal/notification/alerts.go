package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"papertrader/internal/ledger"
	"papertrader/internal/strategy"
)

// AlertManager turns pipeline events into alerts and sends them without
// blocking the pipeline. Delivery failures are logged and dropped.
type AlertManager struct {
	notifier Notifier
	timeout  time.Duration
}

// NewAlertManager wraps a notifier; a nil notifier falls back to the log.
func NewAlertManager(n Notifier) *AlertManager {
	if n == nil {
		n = LogNotifier{}
	}
	return &AlertManager{notifier: n, timeout: 10 * time.Second}
}

// Attach subscribes the manager to signal and position events.
func (m *AlertManager) Attach(engine *strategy.Engine, led *ledger.Ledger) {
	engine.Subscribe(m.onSignal)
	led.OnOpen(m.onOpen)
	led.OnClose(m.onClose)
}

// Startup announces the session.
func (m *AlertManager) Startup(symbols []string, balance float64) {
	m.send(Alert{
		Level:   LevelInfo,
		Title:   "Paper trader started",
		Message: fmt.Sprintf("symbols=%v balance=%.2f", symbols, balance),
	})
}

// Summary reports the session result on shutdown. Unlike the event
// alerts it sends synchronously, so process exit cannot drop it.
func (m *AlertManager) Summary(stats ledger.Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	a := Alert{
		Level: LevelInfo,
		Title: "Session summary",
		Message: fmt.Sprintf("trades=%d wins=%d losses=%d pnl=%.2f balance=%.2f",
			stats.TotalTrades, stats.Wins, stats.Losses, stats.TotalPnL, stats.Balance),
	}
	if err := m.notifier.Send(ctx, a); err != nil {
		slog.Warn("summary alert failed", "error", err)
	}
}

func (m *AlertManager) onSignal(sig strategy.Signal) {
	m.send(Alert{
		Level: LevelInfo,
		Title: fmt.Sprintf("%s %s", sig.Symbol, sig.Kind),
		Message: fmt.Sprintf("price=%.4f score=%d conviction=%.2f %s",
			sig.Price, sig.Score, sig.Conviction, sig.Reason),
	})
}

func (m *AlertManager) onOpen(ev ledger.OpenEvent) {
	m.send(Alert{
		Level: LevelTrade,
		Title: fmt.Sprintf("OPEN %s %s", ev.Symbol, ev.Side),
		Message: fmt.Sprintf("entry=%.4f margin=%.2f leverage=%dx",
			ev.EntryPrice, ev.Margin, ev.Leverage),
	})
}

func (m *AlertManager) onClose(ev ledger.CloseEvent) {
	level := LevelTrade
	if ev.PnL < 0 {
		level = LevelWarning
	}
	m.send(Alert{
		Level: level,
		Title: fmt.Sprintf("CLOSE %s %s [%s]", ev.Symbol, ev.Side, ev.Reason),
		Message: fmt.Sprintf("exit=%.4f pnl=%.2f", ev.ExitPrice, ev.PnL),
	})
}

// send is fire and forget: the pipeline never waits on a chat API.
func (m *AlertManager) send(a Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.notifier.Send(ctx, a); err != nil {
			slog.Warn("alert delivery failed", "title", a.Title, "error", err)
		}
	}()
}
