package domain

import "time"

// Phase is the agent lifecycle phase.
type Phase string

// Lifecycle phases. There is no paused phase; stop is terminal until the next start.
const (
	PhaseStopped  Phase = "stopped"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
)

// Position tracks holdings of the traded asset and the quote currency.
type Position struct {
	AssetBalance      float64 `json:"asset_balance"`
	QuoteBalance      float64 `json:"quote_balance"`
	AverageEntryPrice float64 `json:"average_entry_price"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
}

// LastTrade records the most recent confirmed trade.
type LastTrade struct {
	Direction Direction `json:"direction"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"` // quote units
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"`
}

// AgentState is owned by the agent. Readers get copies via Clone.
type AgentState struct {
	Running        bool               `json:"running"`
	Phase          Phase              `json:"phase"`
	Address        string             `json:"address"`
	TotalBuys      int                `json:"total_buys"`
	TotalSells     int                `json:"total_sells"`
	FailedTrades   int                `json:"failed_trades"`
	LastPrice      float64            `json:"last_price"`
	RealizedProfit float64            `json:"realized_profit"`
	Position       Position           `json:"position"`
	LastTrade      *LastTrade         `json:"last_trade,omitempty"`
	Analytics      *AnalyticsSnapshot `json:"analytics,omitempty"`
	LastError      string             `json:"last_error,omitempty"`
}

// Clone returns a deep copy safe to hand out to other goroutines.
func (s *AgentState) Clone() AgentState {
	out := *s
	if s.LastTrade != nil {
		lt := *s.LastTrade
		out.LastTrade = &lt
	}
	if s.Analytics != nil {
		snap := s.Analytics.Clone()
		out.Analytics = &snap
	}
	return out
}
