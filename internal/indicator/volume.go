package indicator

import "papertrader/internal/model"

// VolumeRatio returns current volume divided by the rolling mean volume
// over the given window (epsilon-guarded). Indices before the first full
// window are zero. Requires at least window candles.
func VolumeRatio(candles []model.Candle, window int) ([]float64, error) {
	if len(candles) < window {
		return nil, ErrInsufficientData
	}
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	ma := rollingMean(vols, window)
	out := make([]float64, len(candles))
	for i := window - 1; i < len(candles); i++ {
		out[i] = vols[i] / (ma[i] + epsilon)
	}
	return out, nil
}
