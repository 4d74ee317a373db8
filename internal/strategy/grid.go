package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"solana-mm-agent/internal/domain"
)

// DefaultGridInterval is used when the grid has no explicit interval.
const DefaultGridInterval = 30 * time.Second

// Grid trades when price crosses levels spaced around an anchor price.
// A downward cross buys, an upward cross sells; when several levels are
// crossed in one tick only the outermost fires. The grid re-anchors when
// price leaves the range.
type Grid struct {
	cfg    domain.AgentConfig
	anchor float64
	levels []float64 // ascending, anchor excluded
	last   float64
}

// NewGrid creates a Grid strategy. Levels are placed on the first tick.
func NewGrid(cfg domain.AgentConfig) *Grid {
	return &Grid{cfg: cfg}
}

// Name returns the strategy kind.
func (g *Grid) Name() domain.StrategyKind { return domain.StrategyGrid }

// Interval returns the configured interval.
func (g *Grid) Interval() time.Duration {
	if g.cfg.Grid.Interval > 0 {
		return g.cfg.Grid.Interval
	}
	return DefaultGridInterval
}

// Levels returns a copy of the current levels.
func (g *Grid) Levels() []float64 {
	return append([]float64(nil), g.levels...)
}

// rangePct is the half-range around the anchor, defaulting to the span of all levels.
func (g *Grid) rangePct() float64 {
	if g.cfg.Grid.RangePct > 0 {
		return g.cfg.Grid.RangePct
	}
	return float64(g.cfg.Grid.Levels) * g.cfg.Grid.SpacingPct
}

func (g *Grid) reanchor(price float64) {
	p := g.cfg.Grid
	step := p.SpacingPct / 100
	lo := price * (1 - g.rangePct()/100)
	hi := price * (1 + g.rangePct()/100)

	levels := make([]float64, 0, 2*p.Levels)
	for i := 1; i <= p.Levels; i++ {
		var below, above float64
		if p.Geometric {
			factor := math.Pow(1+step, float64(i))
			below, above = price/factor, price*factor
		} else {
			below, above = price*(1-step*float64(i)), price*(1+step*float64(i))
		}
		if below >= lo && below > 0 {
			levels = append(levels, below)
		}
		if above <= hi {
			levels = append(levels, above)
		}
	}
	sort.Float64s(levels)

	g.anchor = price
	g.levels = levels
	g.last = price
}

// Tick compares the price with the previous tick and fires at most one level.
func (g *Grid) Tick(view View) Decision {
	price := view.Price
	if price <= 0 {
		return Decision{}
	}
	if g.anchor == 0 {
		g.reanchor(price)
		return Decision{}
	}

	r := g.rangePct() / 100
	if price < g.anchor*(1-r) || price > g.anchor*(1+r) {
		g.reanchor(price)
		return Decision{}
	}

	prev := g.last
	g.last = price

	switch {
	case price < prev:
		// Lowest level in [price, prev) is the outermost downward cross.
		for _, lvl := range g.levels {
			if lvl >= price && lvl < prev {
				reason := fmt.Sprintf("grid level %.9g crossed down", lvl)
				return Decision{Intent: intentFor(g.cfg, domain.DirectionBuy, g.cfg.Grid.OrderSize, price, reason, view.Now)}
			}
		}
	case price > prev:
		for i := len(g.levels) - 1; i >= 0; i-- {
			lvl := g.levels[i]
			if lvl <= price && lvl > prev {
				size := sellSize(g.cfg.Grid.OrderSize, view.Position, price)
				if size <= 0 {
					return Decision{}
				}
				reason := fmt.Sprintf("grid level %.9g crossed up", lvl)
				return Decision{Intent: intentFor(g.cfg, domain.DirectionSell, size, price, reason, view.Now)}
			}
		}
	}
	return Decision{}
}
