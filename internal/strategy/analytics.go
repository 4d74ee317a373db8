package strategy

import (
	"fmt"
	"time"

	"solana-mm-agent/internal/domain"
)

// AnalyticsIntent returns an analytics-directed intent, or nil when the
// recommendation is hold or its confidence does not exceed the threshold.
// Sells are capped at the held position.
func AnalyticsIntent(cfg domain.AgentConfig, snap *domain.AnalyticsSnapshot, pos domain.Position, now time.Time) *domain.TradeIntent {
	if snap == nil || cfg.DefaultTradeSize <= 0 {
		return nil
	}
	rec := snap.Recommendation
	if rec.Action == domain.ActionHold || rec.Confidence <= cfg.ConfidenceThreshold {
		return nil
	}
	price := snap.LatestPrice()
	if price <= 0 {
		return nil
	}

	reason := fmt.Sprintf("analytics %s %.2f: %s", rec.Action, rec.Confidence, rec.Reason)
	switch rec.Action {
	case domain.ActionBuy:
		return intentFor(cfg, domain.DirectionBuy, cfg.DefaultTradeSize, price, reason, now)
	case domain.ActionSell:
		size := sellSize(cfg.DefaultTradeSize, pos, price)
		if size <= 0 {
			return nil
		}
		return intentFor(cfg, domain.DirectionSell, size, price, reason, now)
	default:
		return nil
	}
}

// Custom has no timer of its own; the analytics tick drives its trades.
type Custom struct{}

// Name returns the strategy kind.
func (Custom) Name() domain.StrategyKind { return domain.StrategyCustom }

// Interval returns zero: no strategy timer is scheduled.
func (Custom) Interval() time.Duration { return 0 }

// Tick never trades.
func (Custom) Tick(View) Decision { return Decision{} }
