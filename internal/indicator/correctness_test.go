package indicator

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"papertrader/internal/model"
)

// constantCandles builds n candles with a flat price v.
func constantCandles(n int, v float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     v,
			High:     v,
			Low:      v,
			Close:    v,
			Volume:   10,
		}
	}
	return out
}

func TestEMA_ConstantSeriesConverges(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 42.5
	}
	ema := EMA(values, 8)

	// Seeded with the first value, a constant series stays exactly at V.
	for i, v := range ema {
		if v != 42.5 {
			t.Fatalf("index %d: expected EMA=42.5, got %v", i, v)
		}
	}
}

func TestEMA_SeededByFirstValue(t *testing.T) {
	ema := EMA([]float64{100, 110}, 9)
	if ema[0] != 100 {
		t.Errorf("expected seed 100, got %v", ema[0])
	}
	alpha := 2.0 / 10.0
	want := alpha*110 + (1-alpha)*100
	if math.Abs(ema[1]-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, ema[1])
	}
}

func TestEMA_Empty(t *testing.T) {
	if got := EMA(nil, 8); len(got) != 0 {
		t.Fatalf("expected empty output, got %d values", len(got))
	}
}

func TestRSI_Bounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 500)
	price := 100.0
	for i := range closes {
		price *= 1 + (rng.Float64()-0.5)*0.1
		closes[i] = price
	}

	rsi := RSI(closes, 10)
	for i, v := range rsi {
		if v < 0 || v > 100 {
			t.Fatalf("index %d: RSI %v out of [0,100]", i, v)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: RSI not finite: %v", i, v)
		}
	}
}

func TestRSI_AllGainsNearHundred(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := RSI(closes, 10)
	if last := rsi[len(rsi)-1]; last < 99 {
		t.Errorf("expected RSI near 100 for monotone gains, got %v", last)
	}
}

func TestMACD_Alignment(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	macd, signal := MACD(closes)
	if len(macd) != len(closes) || len(signal) != len(closes) {
		t.Fatalf("expected aligned outputs, got %d/%d", len(macd), len(signal))
	}
	// Rising series: fast EMA above slow EMA at the end.
	if macd[len(macd)-1] <= 0 {
		t.Errorf("expected positive MACD on rising series, got %v", macd[len(macd)-1])
	}
}

func TestATR_InsufficientData(t *testing.T) {
	_, err := ATR(constantCandles(5, 100), 10)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	_, err = ATRPct(constantCandles(9, 100), 10)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	_, err = VolumeRatio(constantCandles(11, 100), 12)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	_, err = TrendBand(constantCandles(3, 100), 10, 2.5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestATR_Backfilled(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		v := 100 + float64(i)
		candles[i] = model.Candle{OpenTime: int64(i) * 60_000, Open: v, High: v + 2, Low: v - 2, Close: v, Volume: 1}
	}
	atr, err := ATR(candles, 10)
	if err != nil {
		t.Fatal(err)
	}
	// Early indices carry the first full-window value, not zero.
	for i := 0; i < 9; i++ {
		if atr[i] != atr[9] {
			t.Errorf("index %d: expected back-fill %v, got %v", i, atr[9], atr[i])
		}
	}
	if atr[9] <= 0 {
		t.Errorf("expected positive ATR, got %v", atr[9])
	}
}

func TestTrueRange_GapsCovered(t *testing.T) {
	candles := []model.Candle{
		{High: 105, Low: 95, Close: 100},
		{High: 102, Low: 101, Close: 101}, // gap vs prev close dominates high-low
	}
	tr := TrueRange(candles)
	if tr[0] != 10 {
		t.Errorf("first TR should be high-low=10, got %v", tr[0])
	}
	// max(102-101, |102-100|, |101-100|) = 2
	if tr[1] != 2 {
		t.Errorf("expected TR=2, got %v", tr[1])
	}
}

func TestTrendBand_DirectionFollowsTrend(t *testing.T) {
	// Strong rise then strong fall; the flag should be bullish near the
	// top of the rise and bearish after the drop.
	candles := make([]model.Candle, 60)
	for i := range candles {
		var v float64
		if i < 30 {
			v = 100 + float64(i)*2
		} else {
			v = 160 - float64(i-30)*3
		}
		candles[i] = model.Candle{OpenTime: int64(i) * 60_000, Open: v, High: v + 1, Low: v - 1, Close: v, Volume: 1}
	}

	dir, err := TrendBand(candles, 10, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if dir[29] != BandBullish {
		t.Errorf("expected bullish at rise peak, got %d", dir[29])
	}
	if dir[59] != BandBearish {
		t.Errorf("expected bearish after the drop, got %d", dir[59])
	}
}

func TestVolumeRatio_SpikeDetected(t *testing.T) {
	candles := constantCandles(30, 100)
	candles[29].Volume = 100 // 10x the running volume
	ratio, err := VolumeRatio(candles, 12)
	if err != nil {
		t.Fatal(err)
	}
	if ratio[29] < 5 {
		t.Errorf("expected spike ratio > 5, got %v", ratio[29])
	}
	if ratio[28] < 0.9 || ratio[28] > 1.1 {
		t.Errorf("expected steady ratio near 1, got %v", ratio[28])
	}
}

func TestDistanceFromEMA_FlatIsZero(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 250
	}
	dist := DistanceFromEMA(closes, 13)
	if dist[39] != 0 {
		t.Errorf("flat series should sit on its EMA, got %v", dist[39])
	}
}
