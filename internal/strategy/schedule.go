package strategy

import (
	"fmt"
	"time"

	"solana-mm-agent/internal/domain"
)

// TWAP buys Amount once per Duration/Intervals until Intervals buys were issued.
type TWAP struct {
	cfg      domain.AgentConfig
	interval time.Duration
	issued   int
}

// minTWAPSlice keeps the slice period positive so a strategy timer is always scheduled.
const minTWAPSlice = time.Millisecond

// NewTWAP creates a TWAP strategy.
func NewTWAP(cfg domain.AgentConfig) *TWAP {
	interval := cfg.TWAP.Duration / time.Duration(cfg.TWAP.Intervals)
	if interval < minTWAPSlice {
		interval = minTWAPSlice
	}
	return &TWAP{cfg: cfg, interval: interval}
}

// Name returns the strategy kind.
func (s *TWAP) Name() domain.StrategyKind { return domain.StrategyTWAP }

// Interval returns Duration/Intervals.
func (s *TWAP) Interval() time.Duration { return s.interval }

// Tick issues the next slice, or reports Done once every slice was issued.
func (s *TWAP) Tick(view View) Decision {
	if s.issued >= s.cfg.TWAP.Intervals {
		return Decision{Done: true}
	}
	s.issued++
	reason := fmt.Sprintf("twap slice %d/%d", s.issued, s.cfg.TWAP.Intervals)
	return Decision{Intent: intentFor(s.cfg, domain.DirectionBuy, s.cfg.TWAP.Amount, view.Price, reason, view.Now)}
}

// DCA buys Amount every Interval up to MaxBuys buys.
type DCA struct {
	cfg    domain.AgentConfig
	issued int
}

// NewDCA creates a DCA strategy.
func NewDCA(cfg domain.AgentConfig) *DCA {
	return &DCA{cfg: cfg}
}

// Name returns the strategy kind.
func (s *DCA) Name() domain.StrategyKind { return domain.StrategyDCA }

// Interval returns the buy period.
func (s *DCA) Interval() time.Duration { return s.cfg.DCA.Interval }

// Tick issues the next buy, or reports Done after MaxBuys.
func (s *DCA) Tick(view View) Decision {
	if s.issued >= s.cfg.DCA.MaxBuys {
		return Decision{Done: true}
	}
	s.issued++
	reason := fmt.Sprintf("dca buy %d/%d", s.issued, s.cfg.DCA.MaxBuys)
	return Decision{Intent: intentFor(s.cfg, domain.DirectionBuy, s.cfg.DCA.Amount, view.Price, reason, view.Now)}
}
