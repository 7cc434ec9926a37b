package strategy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"papertrader/internal/indicator"
	"papertrader/internal/model"
)

// Tunables for the two evaluation stages.
const (
	minTrendCandles = 50 // history required by the trend filter
	minEntryCandles = 30 // history required by the entry scorer

	bandPeriod = 10
	bandMult   = 2.5

	rsiSpan       = 10
	atrPeriod     = 10
	volumeWindow  = 12
	distEMASpan   = 13
	minEntryScore = 2
)

// Handler receives de-duplicated non-HOLD signals.
type Handler func(Signal)

// Engine runs the two-stage signal pipeline and owns the per-symbol
// last-signal table used for dedup. Process is a pure function of the
// candle series it is handed; the engine itself only stores the last
// result per symbol.
type Engine struct {
	mu       sync.Mutex
	handlers []Handler
	last     map[string]Signal
}

// NewEngine creates a signal engine with no subscribers.
func NewEngine() *Engine {
	return &Engine{last: make(map[string]Signal)}
}

// Subscribe registers a handler for de-duplicated non-HOLD signals.
// Handlers are invoked synchronously on the processing path; panics are
// isolated and logged so a broken subscriber cannot halt evaluation.
func (e *Engine) Subscribe(h Handler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// LastSignal returns the most recent signal evaluated for the symbol.
func (e *Engine) LastSignal(symbol string) (Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.last[symbol]
	return s, ok
}

// Process evaluates the trend filter on trendCandles and, if directional,
// the entry scorer on entryCandles. The result is always stored as the
// symbol's last signal; subscribers are notified only when a non-HOLD
// signal differs in kind from the previously stored one.
func (e *Engine) Process(symbol string, trendCandles, entryCandles []model.Candle) Signal {
	sig := e.evaluate(symbol, trendCandles, entryCandles)

	e.mu.Lock()
	prev, hadPrev := e.last[symbol]
	e.last[symbol] = sig
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	prevKind := KindHold
	if hadPrev {
		prevKind = prev.Kind
	}
	if sig.Kind != KindHold && sig.Kind != prevKind {
		slog.Info("signal",
			"symbol", symbol, "kind", string(sig.Kind),
			"score", sig.Score, "price", sig.Price)
		for _, h := range handlers {
			notify(h, sig)
		}
	}
	return sig
}

func notify(h Handler, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("signal handler panicked", "symbol", sig.Symbol, "panic", fmt.Sprint(r))
		}
	}()
	h(sig)
}

func (e *Engine) evaluate(symbol string, trendCandles, entryCandles []model.Candle) Signal {
	dir, reason := trendDirection(trendCandles)
	if dir == Neutral {
		return Signal{
			Symbol:    symbol,
			Kind:      KindHold,
			Direction: Neutral,
			Reason:    reason,
			Timestamp: lastTS(trendCandles),
		}
	}
	return scoreEntry(symbol, dir, entryCandles)
}

// trendDirection computes the higher-timeframe filter: a full EMA stack
// (8>21>50) alone is enough, otherwise the trend-band flag combined with
// partial stack alignment (8>21). Conflicting or absent evidence reads as
// Neutral.
func trendDirection(candles []model.Candle) (Direction, string) {
	if len(candles) < minTrendCandles {
		return Neutral, "insufficient data"
	}

	closes := indicator.Closes(candles)
	ema8 := indicator.EMA(closes, 8)
	ema21 := indicator.EMA(closes, 21)
	ema50 := indicator.EMA(closes, 50)

	band, err := indicator.TrendBand(candles, bandPeriod, bandMult)
	if err != nil {
		return Neutral, "insufficient data"
	}

	i := len(candles) - 1
	stackUp := ema8[i] > ema21[i] && ema21[i] > ema50[i]
	stackDown := ema8[i] < ema21[i] && ema21[i] < ema50[i]
	partialUp := ema8[i] > ema21[i]
	partialDown := ema8[i] < ema21[i]
	bandUp := band[i] == indicator.BandBullish
	bandDown := band[i] == indicator.BandBearish

	bullish := stackUp || (bandUp && partialUp)
	bearish := stackDown || (bandDown && partialDown)

	switch {
	case bullish && !bearish:
		return Bullish, ""
	case bearish && !bullish:
		return Bearish, ""
	default:
		return Neutral, "no clear trend (band and EMA stack not aligned)"
	}
}

// scoreEntry evaluates the five lower-timeframe entry conditions for the
// given trend direction and maps them to a signal.
func scoreEntry(symbol string, dir Direction, candles []model.Candle) Signal {
	if len(candles) < minEntryCandles {
		return Signal{
			Symbol:    symbol,
			Kind:      KindHold,
			Direction: dir,
			Reason:    "insufficient data",
			Timestamp: lastTS(candles),
		}
	}

	closes := indicator.Closes(candles)
	dist := indicator.DistanceFromEMA(closes, distEMASpan)
	rsi := indicator.RSI(closes, rsiSpan)
	macd, macdSig := indicator.MACD(closes)
	body := indicator.Body(candles)

	atrPct, err := indicator.ATRPct(candles, atrPeriod)
	if err != nil {
		return Signal{Symbol: symbol, Kind: KindHold, Direction: dir, Reason: "insufficient data", Timestamp: lastTS(candles)}
	}
	volRatio, err := indicator.VolumeRatio(candles, volumeWindow)
	if err != nil {
		return Signal{Symbol: symbol, Kind: KindHold, Direction: dir, Reason: "insufficient data", Timestamp: lastTS(candles)}
	}

	i := len(candles) - 1
	prev := i - 1

	var nearEMA, momentum, bodyOK bool
	if dir == Bullish {
		nearEMA = dist[i] > -2.0 && dist[i] < 1.5
		momentum = macd[i] > macdSig[i] || macd[i] > macd[prev]
		bodyOK = body[i] > 0
	} else {
		nearEMA = dist[i] > -1.5 && dist[i] < 2.0
		momentum = macd[i] < macdSig[i] || macd[i] < macd[prev]
		bodyOK = body[i] < 0
	}
	rsiOK := rsi[i] > 30 && rsi[i] < 70
	volOK := volRatio[i] > 0.5

	score := 0
	for _, c := range []bool{nearEMA, rsiOK, momentum, bodyOK, volOK} {
		if c {
			score++
		}
	}

	slog.Debug("entry check",
		"symbol", symbol, "direction", string(dir), "score", score,
		"near_ema", nearEMA, "dist_pct", dist[i],
		"rsi_ok", rsiOK, "rsi", rsi[i],
		"momentum", momentum, "body_ok", bodyOK,
		"vol_ok", volOK, "vol_ratio", volRatio[i])

	sig := Signal{
		Symbol:        symbol,
		Direction:     dir,
		Score:         score,
		Conviction:    float64(score) / 5.0,
		Price:         closes[i],
		VolatilityPct: atrPct[i],
		Timestamp:     lastTS(candles),
	}
	if score >= minEntryScore {
		if dir == Bullish {
			sig.Kind = KindBuy
		} else {
			sig.Kind = KindSell
		}
		return sig
	}
	sig.Kind = KindHold
	sig.Reason = fmt.Sprintf("score %d/5 below threshold %d", score, minEntryScore)
	return sig
}

func lastTS(candles []model.Candle) time.Time {
	if len(candles) == 0 {
		return time.Time{}
	}
	return candles[len(candles)-1].TS()
}
