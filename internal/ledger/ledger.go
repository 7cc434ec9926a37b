// Package ledger manages simulated positions against incoming signals: one
// open position per symbol, conviction-scaled sizing, exit-rule evaluation
// on every price update, and P&L accounting with slippage and fees.
package ledger

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"papertrader/internal/strategy"
)

// Side is the direction of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// ExitReason names the rule that closed a position.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TP"
	ExitStopLoss   ExitReason = "SL"
	ExitTrailing   ExitReason = "TRAIL"
	ExitTimeout    ExitReason = "TIMEOUT"
)

// Position is a live simulated position. Mutated only by Update; destroyed
// (turned into a Trade) by close.
type Position struct {
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	EntryPrice      float64   `json:"entry_price"`
	EntryTime       time.Time `json:"entry_time"`
	Leverage        int       `json:"leverage"`
	Margin          float64   `json:"margin"`
	TakeProfit      float64   `json:"take_profit"`
	StopLoss        float64   `json:"stop_loss"`
	TrailPct        float64   `json:"trail_pct"`
	MaxFavorablePct float64   `json:"max_favorable_pct"` // high-water mark, never decreases
	HoldPeriods     int       `json:"hold_periods"`
	Conviction      float64   `json:"conviction"`
}

// Trade is an immutable record of a closed position.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	Leverage   int        `json:"leverage"`
	Margin     float64    `json:"margin"`
	PnL        float64    `json:"pnl"`
	PnLPct     float64    `json:"pnl_pct"`
	ExitReason ExitReason `json:"exit_reason"`
	Conviction float64    `json:"conviction"`
}

// OpenEvent is emitted when a position is opened.
type OpenEvent struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Margin     float64 `json:"margin"`
	Leverage   int     `json:"leverage"`
}

// CloseEvent is emitted when a position is closed.
type CloseEvent struct {
	Symbol    string     `json:"symbol"`
	Side      Side       `json:"side"`
	ExitPrice float64    `json:"exit_price"`
	PnL       float64    `json:"pnl"`
	Reason    ExitReason `json:"reason"`
	Trade     Trade      `json:"-"`
}

// Config holds sizing and exit parameters.
type Config struct {
	StartingBalance float64
	MinLeverage     int
	MaxLeverage     int

	RiskPerTrade  float64 // fraction of balance risked per trade
	MinMargin     float64 // account-currency floor per position
	MaxMarginFrac float64 // cap as fraction of balance

	TakeProfitPct float64
	StopLossPct   float64
	TrailPct      float64
	SlippagePct   float64
	FeeRate       float64 // round-trip, on margin*leverage

	MaxHoldPeriods int
}

// DefaultConfig returns the standard parameter set.
func DefaultConfig(startingBalance float64, minLev, maxLev int) Config {
	return Config{
		StartingBalance: startingBalance,
		MinLeverage:     minLev,
		MaxLeverage:     maxLev,
		RiskPerTrade:    0.02,
		MinMargin:       100,
		MaxMarginFrac:   0.05,
		TakeProfitPct:   0.015,
		StopLossPct:     0.008,
		TrailPct:        0.007,
		SlippagePct:     0.0005,
		FeeRate:         0.0008,
		MaxHoldPeriods:  32,
	}
}

// OpenHandler and CloseHandler receive position lifecycle events.
type (
	OpenHandler  func(OpenEvent)
	CloseHandler func(CloseEvent)
)

// Ledger holds the account balance, at most one open position per symbol,
// and the append-only trade history.
type Ledger struct {
	mu  sync.Mutex
	cfg Config

	balance   float64
	positions map[string]*Position
	trades    []Trade

	openHandlers  []OpenHandler
	closeHandlers []CloseHandler
}

// New creates a ledger with the given configuration.
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:       cfg,
		balance:   cfg.StartingBalance,
		positions: make(map[string]*Position),
	}
}

// OnOpen registers a handler for position-open events.
func (l *Ledger) OnOpen(h OpenHandler) {
	l.mu.Lock()
	l.openHandlers = append(l.openHandlers, h)
	l.mu.Unlock()
}

// OnClose registers a handler for position-close events.
func (l *Ledger) OnClose(h CloseHandler) {
	l.mu.Lock()
	l.closeHandlers = append(l.closeHandlers, h)
	l.mu.Unlock()
}

// HasPosition reports whether a position is open for the symbol.
func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[symbol]
	return ok
}

// Position returns a copy of the open position for the symbol, if any.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Balance returns the current account balance. Margin is reserved only
// conceptually: opening a position scales exposure but does not debit the
// balance; only net P&L at close mutates it.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Trades returns a snapshot of the closed-trade history.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Open opens a position from an actionable signal. Returns false without
// side effects when a position already exists for the symbol or the signal
// is not BUY/SELL.
func (l *Ledger) Open(sig strategy.Signal) bool {
	if !sig.Actionable() {
		return false
	}

	l.mu.Lock()
	if _, exists := l.positions[sig.Symbol]; exists {
		l.mu.Unlock()
		slog.Warn("open rejected: position exists", "symbol", sig.Symbol)
		return false
	}

	side := Long
	slip := 1 + l.cfg.SlippagePct
	if sig.Kind == strategy.KindSell {
		side = Short
		slip = 1 - l.cfg.SlippagePct
	}
	entry := sig.Price * slip

	base := l.balance * l.cfg.RiskPerTrade * (0.5 + 0.5*sig.Conviction)
	margin := clamp(base, l.cfg.MinMargin, l.balance*l.cfg.MaxMarginFrac)

	levRange := float64(l.cfg.MaxLeverage - l.cfg.MinLeverage)
	lev := int(math.Round(float64(l.cfg.MinLeverage) + sig.Conviction*levRange))
	if lev < l.cfg.MinLeverage {
		lev = l.cfg.MinLeverage
	}
	if lev > l.cfg.MaxLeverage {
		lev = l.cfg.MaxLeverage
	}

	var tp, sl float64
	if side == Long {
		tp = entry * (1 + l.cfg.TakeProfitPct)
		sl = entry * (1 - l.cfg.StopLossPct)
	} else {
		tp = entry * (1 - l.cfg.TakeProfitPct)
		sl = entry * (1 + l.cfg.StopLossPct)
	}

	pos := &Position{
		Symbol:     sig.Symbol,
		Side:       side,
		EntryPrice: entry,
		EntryTime:  time.Now().UTC(),
		Leverage:   lev,
		Margin:     margin,
		TakeProfit: tp,
		StopLoss:   sl,
		TrailPct:   l.cfg.TrailPct,
		Conviction: sig.Conviction,
	}
	l.positions[sig.Symbol] = pos
	handlers := make([]OpenHandler, len(l.openHandlers))
	copy(handlers, l.openHandlers)
	l.mu.Unlock()

	slog.Info("position opened",
		"symbol", sig.Symbol, "side", string(side), "entry", entry,
		"margin", margin, "leverage", lev)

	ev := OpenEvent{Symbol: sig.Symbol, Side: side, EntryPrice: entry, Margin: margin, Leverage: lev}
	for _, h := range handlers {
		emitOpen(h, ev)
	}
	return true
}

// Update advances the position against the latest price: increments the
// hold counter, raises the favorable-excursion high-water mark, and
// evaluates exit rules in strict priority order: TP, SL, TRAIL, TIMEOUT,
// first match wins. A match closes the position and returns the reason.
func (l *Ledger) Update(symbol string, price float64) (ExitReason, bool) {
	l.mu.Lock()
	pos, ok := l.positions[symbol]
	if !ok {
		l.mu.Unlock()
		return "", false
	}

	pos.HoldPeriods++

	var pnlPct float64
	if pos.Side == Long {
		pnlPct = (price - pos.EntryPrice) / pos.EntryPrice
	} else {
		pnlPct = (pos.EntryPrice - price) / pos.EntryPrice
	}
	if pnlPct > pos.MaxFavorablePct {
		pos.MaxFavorablePct = pnlPct
	}

	var reason ExitReason
	switch {
	case pos.Side == Long && price >= pos.TakeProfit,
		pos.Side == Short && price <= pos.TakeProfit:
		reason = ExitTakeProfit
	case pos.Side == Long && price <= pos.StopLoss,
		pos.Side == Short && price >= pos.StopLoss:
		reason = ExitStopLoss
	case pos.MaxFavorablePct > pos.TrailPct && pnlPct < pos.MaxFavorablePct-pos.TrailPct:
		reason = ExitTrailing
	case pos.HoldPeriods >= l.cfg.MaxHoldPeriods:
		reason = ExitTimeout
	default:
		l.mu.Unlock()
		return "", false
	}
	l.mu.Unlock()

	l.Close(symbol, price, reason)
	return reason, true
}

// Close closes the symbol's position at the given market price, applying
// exit slippage opposite to the entry direction, booking leveraged P&L net
// of the round-trip fee into the balance, and appending the Trade record.
// A no-op (with a warning) when no position exists.
func (l *Ledger) Close(symbol string, exitPrice float64, reason ExitReason) {
	l.mu.Lock()
	pos, ok := l.positions[symbol]
	if !ok {
		l.mu.Unlock()
		slog.Warn("close rejected: no position", "symbol", symbol)
		return
	}

	var adjExit, pnlPct float64
	if pos.Side == Long {
		adjExit = exitPrice * (1 - l.cfg.SlippagePct)
		pnlPct = (adjExit - pos.EntryPrice) / pos.EntryPrice
	} else {
		adjExit = exitPrice * (1 + l.cfg.SlippagePct)
		pnlPct = (pos.EntryPrice - adjExit) / pos.EntryPrice
	}

	leveraged := pnlPct * float64(pos.Leverage)
	gross := pos.Margin * leveraged
	fee := pos.Margin * float64(pos.Leverage) * l.cfg.FeeRate
	net := gross - fee
	l.balance += net

	trade := Trade{
		Symbol:     symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  adjExit,
		EntryTime:  pos.EntryTime,
		ExitTime:   time.Now().UTC(),
		Leverage:   pos.Leverage,
		Margin:     pos.Margin,
		PnL:        net,
		PnLPct:     pnlPct * 100,
		ExitReason: reason,
		Conviction: pos.Conviction,
	}
	l.trades = append(l.trades, trade)
	delete(l.positions, symbol)
	handlers := make([]CloseHandler, len(l.closeHandlers))
	copy(handlers, l.closeHandlers)
	l.mu.Unlock()

	slog.Info("position closed",
		"symbol", symbol, "side", string(pos.Side), "exit", adjExit,
		"reason", string(reason), "pnl", net, "pnl_pct", trade.PnLPct)

	ev := CloseEvent{Symbol: symbol, Side: pos.Side, ExitPrice: adjExit, PnL: net, Reason: reason, Trade: trade}
	for _, h := range handlers {
		emitClose(h, ev)
	}
}

func emitOpen(h OpenHandler, ev OpenEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("open handler panicked", "symbol", ev.Symbol, "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

func emitClose(h CloseHandler, ev CloseEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("close handler panicked", "symbol", ev.Symbol, "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
