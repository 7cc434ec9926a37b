// Package sqlite persists the closed-trade history to a local journal.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL NOT NULL,
	entry_time  INTEGER NOT NULL,
	exit_time   INTEGER NOT NULL,
	leverage    INTEGER NOT NULL,
	margin      REAL NOT NULL,
	pnl         REAL NOT NULL,
	pnl_pct     REAL NOT NULL,
	exit_reason TEXT NOT NULL,
	conviction  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
`

// Journal is a sqlite-backed trade log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal at path with WAL enabled.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// RecordTrade appends one closed trade.
func (j *Journal) RecordTrade(t ledger.Trade) error {
	_, err := j.db.Exec(`
		INSERT INTO trades (symbol, side, entry_price, exit_price, entry_time, exit_time,
			leverage, margin, pnl, pnl_pct, exit_reason, conviction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice,
		t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(),
		t.Leverage, t.Margin, t.PnL, t.PnLPct, string(t.ExitReason), t.Conviction,
	)
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (j *Journal) RecentTrades(limit int) ([]ledger.Trade, error) {
	rows, err := j.db.Query(`
		SELECT symbol, side, entry_price, exit_price, entry_time, exit_time,
			leverage, margin, pnl, pnl_pct, exit_reason, conviction
		FROM trades ORDER BY exit_time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []ledger.Trade
	for rows.Next() {
		var t ledger.Trade
		var side, reason string
		var entryMs, exitMs int64
		if err := rows.Scan(&t.Symbol, &side, &t.EntryPrice, &t.ExitPrice,
			&entryMs, &exitMs, &t.Leverage, &t.Margin, &t.PnL, &t.PnLPct,
			&reason, &t.Conviction); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = ledger.Side(side)
		t.ExitReason = ledger.ExitReason(reason)
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		t.ExitTime = time.UnixMilli(exitMs).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
