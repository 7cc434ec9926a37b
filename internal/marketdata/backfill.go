package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"papertrader/internal/model"
)

// DefaultRESTURL is the Binance futures REST base.
const DefaultRESTURL = "https://fapi.binance.com"

// HistoryClient fetches historical klines over REST. Used to seed the
// candle store on startup and to close gaps after a reconnect.
type HistoryClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHistoryClient builds a client against the given base URL; empty
// means the public futures endpoint.
func NewHistoryClient(baseURL string) *HistoryClient {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &HistoryClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Klines fetches up to limit most-recent candles for the symbol and
// timeframe, oldest first. The final row is the still-forming candle.
func (c *HistoryClient) Klines(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))
	u := c.BaseURL + "/fapi/v1/klines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, timeframe, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch klines %s %s: status %d", symbol, timeframe, resp.StatusCode)
	}

	// rows are [openTime, open, high, low, close, volume, ...]
	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d: %d fields", i, len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline row %d: bad open time", i)
		}
		var vals [5]float64
		for j := 1; j <= 5; j++ {
			v, err := toFloat(row[j])
			if err != nil {
				return nil, fmt.Errorf("kline row %d col %d: %w", i, j, err)
			}
			vals[j-1] = v
		}
		candles = append(candles, model.Candle{
			OpenTime: int64(openTime),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return candles, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(x, 64)
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
