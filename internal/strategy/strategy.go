// Package strategy decides when an agent trades.
package strategy

import (
	"time"

	"github.com/google/uuid"

	"solana-mm-agent/internal/domain"
)

// Strategy produces at most one trade intent per tick.
// Tick is called from a single re-arming timer and never concurrently.
type Strategy interface {
	// Name returns the configured strategy kind.
	Name() domain.StrategyKind

	// Interval returns the tick period. Zero means the strategy has no timer.
	Interval() time.Duration

	// Tick inspects the current view and returns a decision.
	Tick(view View) Decision
}

// View is the agent state a strategy sees on one tick.
type View struct {
	Now       time.Time
	Price     float64 // latest known price, 0 if unknown
	Position  domain.Position
	Analytics *domain.AnalyticsSnapshot // nil when analytics is disabled or not yet computed
}

// Decision is the outcome of one tick. Done cancels the strategy timer.
type Decision struct {
	Intent *domain.TradeIntent
	Done   bool
}

// intentFor builds a fresh intent bounded by the agent's risk parameters.
func intentFor(cfg domain.AgentConfig, dir domain.Direction, size, price float64, reason string, now time.Time) *domain.TradeIntent {
	return &domain.TradeIntent{
		ID:             uuid.NewString(),
		Direction:      dir,
		Asset:          cfg.Asset,
		Size:           size,
		SlippageBps:    cfg.Risk.SlippageBps,
		FeeBudget:      cfg.Risk.FeeBudgetLamports,
		ReferencePrice: price,
		Reason:         reason,
		Timestamp:      now,
	}
}

// sellSize caps a sell at the quote value of the held asset.
func sellSize(want float64, pos domain.Position, price float64) float64 {
	if held := pos.AssetBalance * price; held < want {
		return held
	}
	return want
}
