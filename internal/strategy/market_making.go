package strategy

import (
	"fmt"
	"math"
	"time"

	"solana-mm-agent/internal/analytics"
	"solana-mm-agent/internal/domain"
)

// MarketMaking keeps a bid/ask band around a reference price. The spread
// widens from MinSpreadPct to MaxSpreadPct as volatility approaches the
// high-volatility mark. Analytics recommendations above the confidence
// threshold preempt the band for that tick.
type MarketMaking struct {
	cfg domain.AgentConfig
}

// NewMarketMaking creates a MarketMaking strategy.
func NewMarketMaking(cfg domain.AgentConfig) *MarketMaking {
	return &MarketMaking{cfg: cfg}
}

// Name returns the strategy kind.
func (m *MarketMaking) Name() domain.StrategyKind { return domain.StrategyMarketMaking }

// Interval returns the quoting period.
func (m *MarketMaking) Interval() time.Duration {
	if m.cfg.MarketMaking.Interval > 0 {
		return m.cfg.MarketMaking.Interval
	}
	return domain.DefaultMarketMakingTick
}

// Spread returns the band width in percent for a volatility in percent.
func (m *MarketMaking) Spread(volatility float64) float64 {
	p := m.cfg.MarketMaking
	w := math.Min(1, math.Max(0, volatility/analytics.HighVolatilityPct))
	return p.MinSpreadPct + (p.MaxSpreadPct-p.MinSpreadPct)*w
}

// Tick returns an analytics-directed intent or a band trade.
func (m *MarketMaking) Tick(view View) Decision {
	if m.cfg.UseAnalytics {
		if intent := AnalyticsIntent(m.cfg, view.Analytics, view.Position, view.Now); intent != nil {
			return Decision{Intent: intent}
		}
	}

	price := view.Price
	if price <= 0 {
		return Decision{}
	}
	p := m.cfg.MarketMaking
	pos := view.Position

	var volatility float64
	if view.Analytics != nil {
		volatility = view.Analytics.Volatility
	}
	half := m.Spread(volatility) / 200

	// Empty inventory: open a position so there is something to quote against.
	if pos.AssetBalance <= 0 {
		if m.exceedsMaxPosition(0, price) {
			return Decision{}
		}
		return Decision{Intent: intentFor(m.cfg, domain.DirectionBuy, p.OrderSize, price, "open inventory", view.Now)}
	}

	ref := pos.AverageEntryPrice
	if ref <= 0 && view.Analytics != nil {
		ref = view.Analytics.FairPrice
	}
	if ref <= 0 {
		ref = price
	}
	bid, ask := ref*(1-half), ref*(1+half)

	switch {
	case price <= bid:
		if m.exceedsMaxPosition(pos.AssetBalance, price) {
			return Decision{}
		}
		reason := fmt.Sprintf("price %.9g at or below bid %.9g", price, bid)
		return Decision{Intent: intentFor(m.cfg, domain.DirectionBuy, p.OrderSize, price, reason, view.Now)}
	case price >= ask:
		size := sellSize(p.OrderSize, pos, price)
		if size <= 0 {
			return Decision{}
		}
		reason := fmt.Sprintf("price %.9g at or above ask %.9g", price, ask)
		return Decision{Intent: intentFor(m.cfg, domain.DirectionSell, size, price, reason, view.Now)}
	default:
		return Decision{}
	}
}

// exceedsMaxPosition reports whether one more buy at price would hold more
// than MaxPosition asset units. Zero MaxPosition means no cap.
func (m *MarketMaking) exceedsMaxPosition(held, price float64) bool {
	p := m.cfg.MarketMaking
	return p.MaxPosition > 0 && held+p.OrderSize/price > p.MaxPosition
}
