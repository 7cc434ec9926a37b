package candlestore

import (
	"testing"

	"papertrader/internal/model"
)

// makeCandle creates a test candle at the given open time (ms) and close.
func makeCandle(openTime int64, close_ float64) model.Candle {
	return model.Candle{
		OpenTime: openTime,
		Open:     close_ - 1,
		High:     close_ + 2,
		Low:      close_ - 2,
		Close:    close_,
		Volume:   100,
	}
}

func TestStore_AppendAndLatest(t *testing.T) {
	s := New(10)

	if _, ok := s.Latest("BTCUSDT", "15m"); ok {
		t.Fatal("expected absent latest for empty store")
	}
	if _, ok := s.Series("BTCUSDT", "15m"); ok {
		t.Fatal("expected absent series for empty store")
	}

	s.Upsert("BTCUSDT", "15m", makeCandle(1000, 50.0))
	s.Upsert("BTCUSDT", "15m", makeCandle(2000, 51.0))

	latest, ok := s.Latest("BTCUSDT", "15m")
	if !ok {
		t.Fatal("expected latest candle")
	}
	if latest.Close != 51.0 {
		t.Errorf("expected close=51.0, got %v", latest.Close)
	}

	series, ok := s.Series("BTCUSDT", "15m")
	if !ok || len(series) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(series))
	}
}

func TestStore_UpsertSameTimestampReplaces(t *testing.T) {
	s := New(10)

	s.Upsert("BTCUSDT", "15m", makeCandle(1000, 50.0))
	s.Upsert("BTCUSDT", "15m", makeCandle(1000, 55.0))

	if got := s.Len("BTCUSDT", "15m"); got != 1 {
		t.Fatalf("expected length 1 after same-timestamp upsert, got %d", got)
	}
	latest, _ := s.Latest("BTCUSDT", "15m")
	if latest.Close != 55.0 {
		t.Errorf("expected second value to win, got close=%v", latest.Close)
	}
}

func TestStore_EvictsOldest(t *testing.T) {
	s := New(5)

	for i := int64(0); i < 20; i++ {
		s.Upsert("ETHUSDT", "1h", makeCandle(i*1000, float64(100+i)))
		if got := s.Len("ETHUSDT", "1h"); got > 5 {
			t.Fatalf("series length %d exceeds bound after %d upserts", got, i+1)
		}
	}

	series, _ := s.Series("ETHUSDT", "1h")
	if len(series) != 5 {
		t.Fatalf("expected 5 candles, got %d", len(series))
	}
	// Oldest surviving bar should be OpenTime=15000 (15..19 remain)
	if series[0].OpenTime != 15000 {
		t.Errorf("expected oldest=15000, got %d", series[0].OpenTime)
	}
	for i := 1; i < len(series); i++ {
		if series[i].OpenTime <= series[i-1].OpenTime {
			t.Errorf("series out of order at %d: %d <= %d", i, series[i].OpenTime, series[i-1].OpenTime)
		}
	}
}

func TestStore_SeriesIsCopy(t *testing.T) {
	s := New(10)
	s.Upsert("BTCUSDT", "15m", makeCandle(1000, 50.0))

	series, _ := s.Series("BTCUSDT", "15m")
	series[0].Close = 999

	latest, _ := s.Latest("BTCUSDT", "15m")
	if latest.Close != 50.0 {
		t.Error("mutating the returned series must not affect the store")
	}
}

func TestStore_IndependentKeys(t *testing.T) {
	s := New(10)
	s.Upsert("BTCUSDT", "15m", makeCandle(1000, 50.0))
	s.Upsert("BTCUSDT", "1h", makeCandle(1000, 60.0))
	s.Upsert("ETHUSDT", "15m", makeCandle(1000, 70.0))

	for _, tc := range []struct {
		symbol, tf string
		close_     float64
	}{
		{"BTCUSDT", "15m", 50.0},
		{"BTCUSDT", "1h", 60.0},
		{"ETHUSDT", "15m", 70.0},
	} {
		latest, ok := s.Latest(tc.symbol, tc.tf)
		if !ok || latest.Close != tc.close_ {
			t.Errorf("%s %s: expected close=%v, got %v (ok=%v)", tc.symbol, tc.tf, tc.close_, latest.Close, ok)
		}
	}
}
