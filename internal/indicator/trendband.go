package indicator

import (
	"math"

	"papertrader/internal/model"
)

// Trend band directions.
const (
	BandBullish = 1
	BandBearish = -1
)

// TrendBand computes a Supertrend-style directional flag per candle.
//
// The band basis is (high+low)/2 with upper/lower offsets of mult times the
// back-filled rolling ATR. While the trend is bullish the trailing stop
// ratchets up along the lower band (never loosens) as long as the close
// holds above it; a close at or below the stop flips the direction to
// bearish and snaps the stop to the upper band. The bearish side mirrors
// this. Only the per-candle direction (BandBullish/BandBearish, 0 for the
// seed index) is returned; consumers use the current sign, not the stop
// level. Requires at least period candles.
func TrendBand(candles []model.Candle, period int, mult float64) ([]int, error) {
	atr, err := ATR(candles, period)
	if err != nil {
		return nil, err
	}

	n := len(candles)
	dir := make([]int, n)
	if n == 0 {
		return dir, nil
	}

	stop := candles[0].Close
	for i := 1; i < n; i++ {
		basis := (candles[i].High + candles[i].Low) / 2
		upper := basis + mult*atr[i]
		lower := basis - mult*atr[i]
		close_ := candles[i].Close

		switch dir[i-1] {
		case BandBullish:
			if close_ > stop {
				stop = math.Max(stop, lower)
				dir[i] = BandBullish
			} else {
				stop = upper
				dir[i] = BandBearish
			}
		case BandBearish:
			if close_ < stop {
				stop = math.Min(stop, upper)
				dir[i] = BandBearish
			} else {
				stop = lower
				dir[i] = BandBullish
			}
		default:
			// Seed index has no established trend yet.
			if close_ > stop {
				stop = lower
				dir[i] = BandBullish
			} else {
				stop = upper
				dir[i] = BandBearish
			}
		}
	}
	return dir, nil
}
