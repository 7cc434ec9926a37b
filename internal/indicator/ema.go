package indicator

// EMA computes the exponential moving average of a series with smoothing
// factor alpha = 2/(span+1), seeded by the first value (not an SMA seed),
// so the output is defined from index 0.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// DistanceFromEMA returns (close - EMA(span)) / EMA(span) * 100 per index,
// the percent distance of price from its own moving average.
func DistanceFromEMA(closes []float64, span int) []float64 {
	ema := EMA(closes, span)
	out := make([]float64, len(closes))
	for i := range closes {
		if ema[i] == 0 {
			continue
		}
		out[i] = (closes[i] - ema[i]) / ema[i] * 100
	}
	return out
}
