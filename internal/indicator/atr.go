package indicator

import (
	"math"

	"papertrader/internal/model"
)

// TrueRange computes the per-candle true range:
// max(high-low, |high-prevClose|, |low-prevClose|). The first candle has no
// previous close, so its true range is simply high-low.
func TrueRange(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prevClose := candles[i-1].Close
			tr = math.Max(tr, math.Abs(c.High-prevClose))
			tr = math.Max(tr, math.Abs(c.Low-prevClose))
		}
		out[i] = tr
	}
	return out
}

// ATR computes the Average True Range as a rolling mean of true range over
// the given period. Indices before the first full window are back-filled
// with the earliest computable value rather than dropped, so every index
// carries a usable level for the trend band. Requires at least period
// candles.
func ATR(candles []model.Candle, period int) ([]float64, error) {
	if len(candles) < period {
		return nil, ErrInsufficientData
	}
	out := rollingMean(TrueRange(candles), period)
	for i := 0; i < period-1; i++ {
		out[i] = out[period-1]
	}
	return out, nil
}

// ATRPct expresses the rolling-mean ATR as a percentage of each candle's
// close. Indices before the first full window are zero. Requires at least
// period candles.
func ATRPct(candles []model.Candle, period int) ([]float64, error) {
	if len(candles) < period {
		return nil, ErrInsufficientData
	}
	atr := rollingMean(TrueRange(candles), period)
	out := make([]float64, len(candles))
	for i := period - 1; i < len(candles); i++ {
		if candles[i].Close == 0 {
			continue
		}
		out[i] = atr[i] / candles[i].Close * 100
	}
	return out, nil
}

// Body returns the signed candle body (close - open) per index.
func Body(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close - c.Open
	}
	return out
}
