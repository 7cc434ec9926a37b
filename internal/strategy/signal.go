// Package strategy derives directional trading signals from two candle
// timeframes: a trend filter on the higher timeframe gates a weighted entry
// scorer on the lower timeframe.
package strategy

import "time"

// Kind is the actionable side of a signal.
type Kind string

const (
	KindBuy  Kind = "BUY"
	KindSell Kind = "SELL"
	KindHold Kind = "HOLD"
)

// Direction is the higher-timeframe trend reading.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Signal is the output of one evaluation cycle for a symbol. Signals are
// transient: each cycle supersedes the last, and only the most recent one
// per symbol is retained for dedup.
type Signal struct {
	Symbol        string    `json:"symbol"`
	Kind          Kind      `json:"signal"`
	Direction     Direction `json:"direction"`
	Score         int       `json:"score"`      // 0..5 entry conditions met
	Conviction    float64   `json:"conviction"` // Score/5 in [0,1]
	Price         float64   `json:"price"`      // reference close price
	VolatilityPct float64   `json:"atr_pct"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason"`
}

// Actionable reports whether the signal should open a position.
func (s Signal) Actionable() bool {
	return s.Kind == KindBuy || s.Kind == KindSell
}
