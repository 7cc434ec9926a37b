package ledger

import (
	"encoding/json"
	"math"
)

// Stats summarizes the account over all closed trades. ProfitFactor is
// +Inf when there are winners and no losers; it serializes as the string
// "inf" since JSON has no infinity literal.
type Stats struct {
	Balance       float64 `json:"balance"`
	OpenPositions int     `json:"open_positions"`
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"` // percent
	TotalPnL      float64 `json:"total_pnl"`
	ReturnPct     float64 `json:"return_pct"`
	ProfitFactor  float64 `json:"-"`
}

// MarshalJSON renders ProfitFactor as a string when infinite.
func (s Stats) MarshalJSON() ([]byte, error) {
	type alias Stats
	var pf any = s.ProfitFactor
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}
	return json.Marshal(struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{alias(s), pf})
}

// Stats computes the current account summary.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Balance:       l.balance,
		OpenPositions: len(l.positions),
		TotalTrades:   len(l.trades),
	}

	// break-even trades count toward TotalTrades but neither side
	var grossWin, grossLoss float64
	for _, t := range l.trades {
		s.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			s.Wins++
			grossWin += t.PnL
		case t.PnL < 0:
			s.Losses++
			grossLoss += -t.PnL
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	if l.cfg.StartingBalance > 0 {
		s.ReturnPct = (l.balance - l.cfg.StartingBalance) / l.cfg.StartingBalance * 100
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}
	return s
}
