package model

import "time"

// Candle represents a fixed-interval OHLCV bar for one symbol/timeframe.
// OpenTime is the bar's open timestamp in epoch milliseconds; within a
// series it is monotonically non-decreasing and unique per bar.
type Candle struct {
	OpenTime int64   `json:"timestamp"` // epoch ms
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// TS returns the open time as a time.Time in UTC.
func (c Candle) TS() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Equal reports whether two candles carry identical timestamp and OHLCV.
// Used by consumers to stay idempotent when a reconnect backfill re-delivers
// an already-seen closed candle.
func (c Candle) Equal(o Candle) bool {
	return c.OpenTime == o.OpenTime &&
		c.Open == o.Open && c.High == o.High &&
		c.Low == o.Low && c.Close == o.Close &&
		c.Volume == o.Volume
}

// CandleEvent is the notification payload delivered to feed subscribers.
// Closed=false marks an in-progress (still forming) bar update; downstream
// decision logic acts only on Closed=true events.
type CandleEvent struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Candle    Candle `json:"candle"`
	Closed    bool   `json:"closed"`
}

// Key returns a unique key for this event's series: "symbol:timeframe".
func (e CandleEvent) Key() string {
	return e.Symbol + ":" + e.Timeframe
}
