// Package indicator provides technical indicator calculations over candle
// series. All functions are pure: they take an ordered candle sequence and
// return a derived series aligned one-to-one with the input, computed
// causally (each value depends only on candles at or before its index).
//
// Functions that need a full rolling window of history return
// ErrInsufficientData instead of partial values; callers treat that as a
// HOLD condition, not a fault.
package indicator

import (
	"errors"

	"papertrader/internal/model"
)

// ErrInsufficientData is returned when a series is shorter than the rolling
// window an indicator requires.
var ErrInsufficientData = errors.New("insufficient data")

// epsilon guards divisions against zero denominators.
const epsilon = 1e-10

// Closes extracts the close series from a candle sequence.
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// rollingMean computes a simple rolling mean over the given window.
// Indices before the window is full are left at zero.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 || len(values) < window {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}
