package domain

import (
	"fmt"
	"time"
)

// StrategyKind selects the trading loop an agent runs.
type StrategyKind string

// Strategy kinds
const (
	StrategyGrid         StrategyKind = "grid"
	StrategyTWAP         StrategyKind = "twap"
	StrategyMarketMaking StrategyKind = "market_making"
	StrategyDCA          StrategyKind = "dca"
	StrategyCustom       StrategyKind = "custom"
)

// ExecutionMode selects how the executor settles a trade.
type ExecutionMode string

// Execution modes
const (
	ExecutionBuildSignSubmit ExecutionMode = "build_sign_submit"
	ExecutionOneCall         ExecutionMode = "one_call"
)

// WrappedSOLMint is the quote asset used by default.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Defaults applied by AgentConfig.WithDefaults.
const (
	DefaultAnalyticsInterval   = 30 * time.Second
	DefaultAnalyticsWindow     = 60 * time.Minute
	DefaultConfidenceThreshold = 0.7
	DefaultMarketMakingTick    = 10 * time.Second
	DefaultSlippageBps         = 100
	DefaultAssetDecimals       = 6
)

// GridParams configures the grid strategy.
type GridParams struct {
	Levels     int     // number of levels on each side of the anchor
	SpacingPct float64 // distance between levels, percent of anchor
	RangePct   float64 // total half-range around the anchor, percent
	Geometric  bool    // logarithmic spacing instead of linear
	OrderSize  float64 // quote units per triggered level
	Interval   time.Duration
}

// TWAPParams configures the TWAP strategy.
type TWAPParams struct {
	Duration  time.Duration // total duration
	Intervals int           // number of buys
	Amount    float64       // quote units per interval
}

// MarketMakingParams configures the market making strategy.
type MarketMakingParams struct {
	MinSpreadPct float64
	MaxSpreadPct float64
	MaxPosition  float64 // asset units
	OrderSize    float64 // quote units
	Interval     time.Duration
}

// DCAParams configures the DCA strategy.
type DCAParams struct {
	Interval time.Duration
	Amount   float64 // quote units per buy
	MaxBuys  int
}

// RiskParams bounds every trade the agent issues.
type RiskParams struct {
	SlippageBps       int
	FeeBudgetLamports uint64
	MinSOLBalance     float64 // below this the agent warns at start
}

// AgentConfig is supplied once at construction and never mutated.
type AgentConfig struct {
	Name          string
	Asset         string // traded token mint
	QuoteAsset    string // quote mint, wrapped SOL by default
	AssetDecimals int32

	Strategy     StrategyKind
	Grid         GridParams
	TWAP         TWAPParams
	MarketMaking MarketMakingParams
	DCA          DCAParams
	Risk         RiskParams

	Enabled             bool
	UseAnalytics        bool
	AnalyticsInterval   time.Duration
	AnalyticsWindow     time.Duration
	DefaultTradeSize    float64
	ConfidenceThreshold float64
	ExecutionMode       ExecutionMode

	// Exactly one of Seed or AccountRef supplies the signing identity.
	Seed       []byte // 32-byte ed25519 seed
	AccountRef string // secret name resolved through a secrets provider
}

// ConfigurationError reports an invalid AgentConfig. It is fatal at construction.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c AgentConfig) WithDefaults() AgentConfig {
	if c.QuoteAsset == "" {
		c.QuoteAsset = WrappedSOLMint
	}
	if c.AssetDecimals == 0 {
		c.AssetDecimals = DefaultAssetDecimals
	}
	if c.AnalyticsInterval <= 0 {
		c.AnalyticsInterval = DefaultAnalyticsInterval
	}
	if c.AnalyticsWindow <= 0 {
		c.AnalyticsWindow = DefaultAnalyticsWindow
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.Risk.SlippageBps <= 0 {
		c.Risk.SlippageBps = DefaultSlippageBps
	}
	if c.MarketMaking.Interval <= 0 {
		c.MarketMaking.Interval = DefaultMarketMakingTick
	}
	if c.ExecutionMode == "" {
		c.ExecutionMode = ExecutionBuildSignSubmit
	}
	return c
}

// Validate checks identity exclusivity and strategy parameters.
func (c AgentConfig) Validate() error {
	hasSeed := len(c.Seed) > 0
	hasRef := c.AccountRef != ""
	switch {
	case hasSeed && hasRef:
		return &ConfigurationError{Field: "identity", Reason: "seed and account reference are mutually exclusive"}
	case !hasSeed && !hasRef:
		return &ConfigurationError{Field: "identity", Reason: "one of seed or account reference is required"}
	case hasSeed && len(c.Seed) != 32:
		return &ConfigurationError{Field: "seed", Reason: fmt.Sprintf("must be 32 bytes, got %d", len(c.Seed))}
	}

	if c.Asset == "" {
		return &ConfigurationError{Field: "asset", Reason: "required"}
	}
	if c.Risk.SlippageBps < 0 || c.Risk.SlippageBps > 10000 {
		return &ConfigurationError{Field: "risk.slippage_bps", Reason: "must be within [0, 10000]"}
	}
	if c.ExecutionMode != "" && c.ExecutionMode != ExecutionBuildSignSubmit && c.ExecutionMode != ExecutionOneCall {
		return &ConfigurationError{Field: "execution_mode", Reason: fmt.Sprintf("unknown mode %q", c.ExecutionMode)}
	}

	switch c.Strategy {
	case StrategyGrid:
		if c.Grid.Levels <= 0 {
			return &ConfigurationError{Field: "grid.levels", Reason: "must be positive"}
		}
		if c.Grid.SpacingPct <= 0 {
			return &ConfigurationError{Field: "grid.spacing_pct", Reason: "must be positive"}
		}
	case StrategyTWAP:
		if c.TWAP.Intervals <= 0 {
			return &ConfigurationError{Field: "twap.intervals", Reason: "must be positive"}
		}
		if c.TWAP.Duration <= 0 {
			return &ConfigurationError{Field: "twap.duration", Reason: "must be positive"}
		}
		if c.TWAP.Amount <= 0 {
			return &ConfigurationError{Field: "twap.amount", Reason: "must be positive"}
		}
	case StrategyMarketMaking:
		if c.MarketMaking.MinSpreadPct <= 0 || c.MarketMaking.MaxSpreadPct < c.MarketMaking.MinSpreadPct {
			return &ConfigurationError{Field: "market_making.spread", Reason: "need 0 < min_spread <= max_spread"}
		}
	case StrategyDCA:
		if c.DCA.Interval <= 0 {
			return &ConfigurationError{Field: "dca.interval", Reason: "must be positive"}
		}
		if c.DCA.Amount <= 0 {
			return &ConfigurationError{Field: "dca.amount", Reason: "must be positive"}
		}
		if c.DCA.MaxBuys <= 0 {
			return &ConfigurationError{Field: "dca.max_buys", Reason: "must be positive"}
		}
	case StrategyCustom:
		if !c.UseAnalytics {
			return &ConfigurationError{Field: "use_analytics", Reason: "custom strategy trades only from analytics"}
		}
	default:
		return &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}

	return nil
}
