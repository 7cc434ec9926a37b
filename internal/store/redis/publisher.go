// Package redis publishes signals, trades, and account snapshots for
// downstream consumers (dashboards, other services).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/ledger"
	"papertrader/internal/strategy"
)

const (
	signalStream = "papertrader:signals"
	tradeStream  = "papertrader:trades"
	statsKey     = "papertrader:stats"

	streamMaxLen = 10000
	statsTTL     = 24 * time.Hour
)

// Publisher writes pipeline events to Redis streams and keeps the latest
// account snapshot under a plain key.
type Publisher struct {
	client *goredis.Client
}

// NewPublisher connects and verifies the server is reachable.
func NewPublisher(ctx context.Context, addr, password string) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Publisher{client: client}, nil
}

// PublishSignal appends an actionable signal to the signal stream.
func (p *Publisher) PublishSignal(ctx context.Context, sig strategy.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream:       signalStream,
		MaxLenApprox: streamMaxLen,
		Values:       map[string]any{"symbol": sig.Symbol, "payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd signal: %w", err)
	}
	return nil
}

// PublishTrade appends a closed trade to the trade stream.
func (p *Publisher) PublishTrade(ctx context.Context, t ledger.Trade) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream:       tradeStream,
		MaxLenApprox: streamMaxLen,
		Values:       map[string]any{"symbol": t.Symbol, "payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd trade: %w", err)
	}
	return nil
}

// PublishStats stores the latest account snapshot.
func (p *Publisher) PublishStats(ctx context.Context, s ledger.Stats) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := p.client.Set(ctx, statsKey, payload, statsTTL).Err(); err != nil {
		return fmt.Errorf("set stats: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
