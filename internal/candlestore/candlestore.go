// Package candlestore provides a bounded, per-(symbol, timeframe) ordered
// buffer of OHLCV candles. The last stored candle of a series may represent
// an in-progress bar and is refined in place by upserts carrying the same
// timestamp; every earlier candle is immutable once appended.
package candlestore

import (
	"sync"

	"papertrader/internal/model"
)

// Store holds candle series keyed by symbol and timeframe. Each series is
// ordered by open time, unique per timestamp, and bounded to maxCandles
// entries with FIFO eviction of the oldest bar.
type Store struct {
	mu         sync.RWMutex
	maxCandles int
	series     map[string]map[string][]model.Candle // symbol -> timeframe -> candles
}

// New creates a Store bounded to maxCandles per series. Minimum bound is 1.
func New(maxCandles int) *Store {
	if maxCandles < 1 {
		maxCandles = 1
	}
	return &Store{
		maxCandles: maxCandles,
		series:     make(map[string]map[string][]model.Candle),
	}
}

// Upsert stores a candle. If the last candle of the series carries the same
// open time it is replaced (open-bar refinement); otherwise the candle is
// appended and the oldest bar evicted once the series exceeds the bound.
func (s *Store) Upsert(symbol, timeframe string, c model.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTF, ok := s.series[symbol]
	if !ok {
		byTF = make(map[string][]model.Candle)
		s.series[symbol] = byTF
	}

	candles := byTF[timeframe]
	if n := len(candles); n > 0 && candles[n-1].OpenTime == c.OpenTime {
		candles[n-1] = c
		return
	}

	candles = append(candles, c)
	if len(candles) > s.maxCandles {
		// FIFO eviction; shift rather than reslice so the backing array
		// does not grow without bound.
		copy(candles, candles[1:])
		candles = candles[:s.maxCandles]
	}
	byTF[timeframe] = candles
}

// Latest returns the most recent candle for the series. ok=false when the
// series is unknown or empty, a normal transient state during startup.
func (s *Store) Latest(symbol, timeframe string) (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candles := s.series[symbol][timeframe]
	if len(candles) == 0 {
		return model.Candle{}, false
	}
	return candles[len(candles)-1], true
}

// Series returns a copy of the ordered candle sequence for the series.
// ok=false when the series is unknown or empty.
func (s *Store) Series(symbol, timeframe string) ([]model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candles := s.series[symbol][timeframe]
	if len(candles) == 0 {
		return nil, false
	}
	out := make([]model.Candle, len(candles))
	copy(out, candles)
	return out, true
}

// Len returns the current length of the series (0 for unknown keys).
func (s *Store) Len(symbol, timeframe string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[symbol][timeframe])
}
