package strategy

import (
	"errors"

	"solana-mm-agent/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategy      = errors.New("unknown strategy")
	ErrMissingGridParams    = errors.New("grid requires levels, spacing and order size")
	ErrMissingTWAPParams    = errors.New("twap requires duration, intervals and amount")
	ErrMissingMMParams      = errors.New("market_making requires spreads and order size")
	ErrMissingDCAParams     = errors.New("dca requires interval, amount and max buys")
	ErrCustomNeedsAnalytics = errors.New("custom strategy requires analytics")
)

// FromConfig selects the strategy once per agent.
func FromConfig(cfg domain.AgentConfig) (Strategy, error) {
	switch cfg.Strategy {
	case domain.StrategyGrid:
		p := cfg.Grid
		if p.Levels <= 0 || p.SpacingPct <= 0 || p.OrderSize <= 0 {
			return nil, ErrMissingGridParams
		}
		return NewGrid(cfg), nil
	case domain.StrategyTWAP:
		p := cfg.TWAP
		if p.Duration <= 0 || p.Intervals <= 0 || p.Amount <= 0 {
			return nil, ErrMissingTWAPParams
		}
		return NewTWAP(cfg), nil
	case domain.StrategyMarketMaking:
		p := cfg.MarketMaking
		if p.MinSpreadPct <= 0 || p.MaxSpreadPct < p.MinSpreadPct || p.OrderSize <= 0 {
			return nil, ErrMissingMMParams
		}
		return NewMarketMaking(cfg), nil
	case domain.StrategyDCA:
		p := cfg.DCA
		if p.Interval <= 0 || p.Amount <= 0 || p.MaxBuys <= 0 {
			return nil, ErrMissingDCAParams
		}
		return NewDCA(cfg), nil
	case domain.StrategyCustom:
		if !cfg.UseAnalytics {
			return nil, ErrCustomNeedsAnalytics
		}
		return Custom{}, nil
	default:
		return nil, ErrUnknownStrategy
	}
}
