// Package config loads process configuration and sets up logging.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/spf13/viper"

	"solana-mm-agent/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. MMAGENT_SOLANA_RPC_URL.
const EnvPrefix = "MMAGENT"

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Solana     SolanaConfig     `mapstructure:"solana"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Agent      AgentSection     `mapstructure:"agent"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	NATS       NATSConfig       `mapstructure:"nats"`
	API        APIConfig        `mapstructure:"api"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console
}

// SolanaConfig contains cluster endpoints
type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	WSURL          string        `mapstructure:"ws_url"` // empty disables WebSocket confirmation
	Commitment     string        `mapstructure:"commitment"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SendMaxRetries int           `mapstructure:"send_max_retries"`
	RPCMaxRetries  int           `mapstructure:"rpc_max_retries"`
}

// AggregatorConfig contains swap aggregator settings
type AggregatorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
	ReferenceSizeSOL  float64       `mapstructure:"reference_size_sol"`
}

// AgentSection is the file representation of domain.AgentConfig
type AgentSection struct {
	Name                string        `mapstructure:"name"`
	Asset               string        `mapstructure:"asset"`
	QuoteAsset          string        `mapstructure:"quote_asset"`
	AssetDecimals       int32         `mapstructure:"asset_decimals"`
	Strategy            string        `mapstructure:"strategy"`
	Enabled             bool          `mapstructure:"enabled"`
	UseAnalytics        bool          `mapstructure:"use_analytics"`
	AnalyticsInterval   time.Duration `mapstructure:"analytics_interval"`
	AnalyticsWindow     time.Duration `mapstructure:"analytics_window"`
	DefaultTradeSize    float64       `mapstructure:"default_trade_size"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	ExecutionMode       string        `mapstructure:"execution_mode"`
	Seed                string        `mapstructure:"seed"` // base58, 32 bytes
	AccountRef          string        `mapstructure:"account_ref"`

	Grid         GridSection         `mapstructure:"grid"`
	TWAP         TWAPSection         `mapstructure:"twap"`
	MarketMaking MarketMakingSection `mapstructure:"market_making"`
	DCA          DCASection          `mapstructure:"dca"`
	Risk         RiskSection         `mapstructure:"risk"`
}

// GridSection configures the grid strategy
type GridSection struct {
	Levels     int           `mapstructure:"levels"`
	SpacingPct float64       `mapstructure:"spacing_pct"`
	RangePct   float64       `mapstructure:"range_pct"`
	Geometric  bool          `mapstructure:"geometric"`
	OrderSize  float64       `mapstructure:"order_size"`
	Interval   time.Duration `mapstructure:"interval"`
}

// TWAPSection configures the TWAP strategy
type TWAPSection struct {
	DurationMinutes int     `mapstructure:"duration_minutes"`
	Intervals       int     `mapstructure:"intervals"`
	Amount          float64 `mapstructure:"amount"`
}

// MarketMakingSection configures the market making strategy
type MarketMakingSection struct {
	MinSpreadPct float64       `mapstructure:"min_spread_pct"`
	MaxSpreadPct float64       `mapstructure:"max_spread_pct"`
	MaxPosition  float64       `mapstructure:"max_position"`
	OrderSize    float64       `mapstructure:"order_size"`
	Interval     time.Duration `mapstructure:"interval"`
}

// DCASection configures the DCA strategy
type DCASection struct {
	Interval time.Duration `mapstructure:"interval"`
	Amount   float64       `mapstructure:"amount"`
	MaxBuys  int           `mapstructure:"max_buys"`
}

// RiskSection bounds every trade
type RiskSection struct {
	SlippageBps       int     `mapstructure:"slippage_bps"`
	FeeBudgetLamports uint64  `mapstructure:"fee_budget_lamports"`
	MinSOLBalance     float64 `mapstructure:"min_sol_balance"`
}

// StorageConfig selects trade and price sample persistence
type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // memory or postgres
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // empty keeps samples in memory
}

// SecretsConfig selects where AccountRef secrets are resolved
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"` // env or vault
	EnvPrefix  string `mapstructure:"env_prefix"`
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
	VaultMount string `mapstructure:"vault_mount"`
}

// NATSConfig contains trade event publishing settings
type NATSConfig struct {
	URL           string `mapstructure:"url"` // empty disables publishing
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// APIConfig contains the control surface listener
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port for the HTTP listener.
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("agent")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.ws_url", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.confirm_timeout", 60*time.Second)
	v.SetDefault("solana.poll_interval", 2*time.Second)
	v.SetDefault("solana.send_max_retries", 3)
	v.SetDefault("solana.rpc_max_retries", 3)

	v.SetDefault("aggregator.base_url", "https://lite-api.jup.ag")
	v.SetDefault("aggregator.timeout", 15*time.Second)
	v.SetDefault("aggregator.requests_per_second", 1.0)
	v.SetDefault("aggregator.burst", 2)
	v.SetDefault("aggregator.breaker_failures", 5)
	v.SetDefault("aggregator.breaker_timeout", 60*time.Second)
	v.SetDefault("aggregator.reference_size_sol", 0.1)

	// Empty defaults register the keys so environment overrides apply.
	for _, key := range []string{
		"agent.asset", "agent.seed", "agent.account_ref",
		"aggregator.api_key",
		"storage.postgres_dsn", "storage.clickhouse_dsn",
		"secrets.vault_addr", "secrets.vault_token",
		"nats.url",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("agent.name", "mm-agent")
	v.SetDefault("agent.quote_asset", domain.WrappedSOLMint)
	v.SetDefault("agent.asset_decimals", domain.DefaultAssetDecimals)
	v.SetDefault("agent.strategy", string(domain.StrategyDCA))
	v.SetDefault("agent.enabled", true)
	v.SetDefault("agent.use_analytics", true)
	v.SetDefault("agent.analytics_interval", domain.DefaultAnalyticsInterval)
	v.SetDefault("agent.analytics_window", domain.DefaultAnalyticsWindow)
	v.SetDefault("agent.default_trade_size", 0.1)
	v.SetDefault("agent.confidence_threshold", domain.DefaultConfidenceThreshold)
	v.SetDefault("agent.execution_mode", string(domain.ExecutionBuildSignSubmit))
	v.SetDefault("agent.risk.slippage_bps", domain.DefaultSlippageBps)
	v.SetDefault("agent.risk.fee_budget_lamports", 100000)
	v.SetDefault("agent.risk.min_sol_balance", 0.05)
	v.SetDefault("agent.market_making.interval", domain.DefaultMarketMakingTick)
	v.SetDefault("agent.dca.interval", time.Hour)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.env_prefix", "MMAGENT_SECRET_")
	v.SetDefault("secrets.vault_mount", "secret")
	v.SetDefault("nats.subject_prefix", "mmagent.")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
}

// Validate checks process-level settings. Agent settings are validated by
// domain.AgentConfig.Validate when the agent is constructed.
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if c.Aggregator.BaseURL == "" {
		return fmt.Errorf("aggregator.base_url is required")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Secrets.Provider {
	case "env":
	case "vault":
		if c.Secrets.VaultAddr == "" {
			return fmt.Errorf("secrets.vault_addr is required for vault provider")
		}
	default:
		return fmt.Errorf("unknown secrets.provider %q", c.Secrets.Provider)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	return nil
}

// AgentConfig converts the agent section into the immutable domain config.
func (c *Config) AgentConfig() (domain.AgentConfig, error) {
	a := c.Agent

	var seed []byte
	if a.Seed != "" {
		raw, err := base58.Decode(a.Seed)
		if err != nil {
			return domain.AgentConfig{}, &domain.ConfigurationError{Field: "seed", Reason: "not valid base58"}
		}
		seed = raw
	}

	cfg := domain.AgentConfig{
		Name:          a.Name,
		Asset:         a.Asset,
		QuoteAsset:    a.QuoteAsset,
		AssetDecimals: a.AssetDecimals,
		Strategy:      domain.StrategyKind(a.Strategy),
		Grid: domain.GridParams{
			Levels:     a.Grid.Levels,
			SpacingPct: a.Grid.SpacingPct,
			RangePct:   a.Grid.RangePct,
			Geometric:  a.Grid.Geometric,
			OrderSize:  a.Grid.OrderSize,
			Interval:   a.Grid.Interval,
		},
		TWAP: domain.TWAPParams{
			Duration:  time.Duration(a.TWAP.DurationMinutes) * time.Minute,
			Intervals: a.TWAP.Intervals,
			Amount:    a.TWAP.Amount,
		},
		MarketMaking: domain.MarketMakingParams{
			MinSpreadPct: a.MarketMaking.MinSpreadPct,
			MaxSpreadPct: a.MarketMaking.MaxSpreadPct,
			MaxPosition:  a.MarketMaking.MaxPosition,
			OrderSize:    a.MarketMaking.OrderSize,
			Interval:     a.MarketMaking.Interval,
		},
		DCA: domain.DCAParams{
			Interval: a.DCA.Interval,
			Amount:   a.DCA.Amount,
			MaxBuys:  a.DCA.MaxBuys,
		},
		Risk: domain.RiskParams{
			SlippageBps:       a.Risk.SlippageBps,
			FeeBudgetLamports: a.Risk.FeeBudgetLamports,
			MinSOLBalance:     a.Risk.MinSOLBalance,
		},
		Enabled:             a.Enabled,
		UseAnalytics:        a.UseAnalytics,
		AnalyticsInterval:   a.AnalyticsInterval,
		AnalyticsWindow:     a.AnalyticsWindow,
		DefaultTradeSize:    a.DefaultTradeSize,
		ConfidenceThreshold: a.ConfidenceThreshold,
		ExecutionMode:       domain.ExecutionMode(a.ExecutionMode),
		Seed:                seed,
		AccountRef:          a.AccountRef,
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return domain.AgentConfig{}, err
	}
	return cfg, nil
}
