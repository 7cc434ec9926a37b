package indicator

// RSI computes the Relative Strength Index over the close series using
// EMA-smoothed average gain and loss (alpha = 2/(span+1), first-delta
// seeded). The loss denominator is epsilon-guarded, which keeps the output
// bounded in [0, 100) for any finite input. Index 0 has no delta and is
// reported as 0.
func RSI(closes []float64, span int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) < 2 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if i == 1 {
			avgGain = gain
			avgLoss = loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}

		rs := avgGain / (avgLoss + epsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
