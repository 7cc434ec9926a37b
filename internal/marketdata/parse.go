package marketdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"papertrader/internal/model"
)

// ErrMalformedMessage marks a stream payload that could not be decoded.
// The feed treats it as a protocol fault and tears down the connection.
var ErrMalformedMessage = errors.New("malformed stream message")

// combined-stream envelope: {"stream":"btcusdt@kline_15m","data":{...}}
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	EventType string       `json:"e"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime int64  `json:"t"`
	Symbol   string `json:"s"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

// ParseKline decodes a combined-stream kline message into a candle event.
// Non-kline events on the stream return (zero, false, nil) and are skipped.
func ParseKline(raw []byte) (model.CandleEvent, bool, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.CandleEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(env.Data) == 0 {
		return model.CandleEvent{}, false, fmt.Errorf("%w: empty data field", ErrMalformedMessage)
	}

	var ev klineEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return model.CandleEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if ev.EventType != "kline" {
		return model.CandleEvent{}, false, nil
	}

	k := ev.Kline
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	clos, err4 := strconv.ParseFloat(k.Close, 64)
	vol, err5 := strconv.ParseFloat(k.Volume, 64)
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		return model.CandleEvent{}, false, fmt.Errorf("%w: bad price field: %v", ErrMalformedMessage, err)
	}
	if k.Symbol == "" || k.Interval == "" {
		return model.CandleEvent{}, false, fmt.Errorf("%w: missing symbol or interval", ErrMalformedMessage)
	}

	return model.CandleEvent{
		Symbol:    strings.ToUpper(k.Symbol),
		Timeframe: k.Interval,
		Closed:    k.Closed,
		Candle: model.Candle{
			OpenTime: k.OpenTime,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    clos,
			Volume:   vol,
		},
	}, true, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// StreamName builds the combined-stream subscription name for a
// symbol/timeframe pair, e.g. "btcusdt@kline_15m".
func StreamName(symbol, timeframe string) string {
	return strings.ToLower(symbol) + "@kline_" + timeframe
}
