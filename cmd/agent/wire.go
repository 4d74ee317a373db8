package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"solana-mm-agent/internal/analytics"
	"solana-mm-agent/internal/config"
	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/events"
	"solana-mm-agent/internal/executor"
	"solana-mm-agent/internal/jupiter"
	"solana-mm-agent/internal/secrets"
	"solana-mm-agent/internal/solana"
	"solana-mm-agent/internal/storage"
	chstore "solana-mm-agent/internal/storage/clickhouse"
	"solana-mm-agent/internal/storage/memory"
	"solana-mm-agent/internal/storage/migrations"
	pgstore "solana-mm-agent/internal/storage/postgres"
)

// stores holds the selected persistence backends.
type stores struct {
	trades  storage.TradeRecordStore
	samples storage.PriceSampleStore
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores selects memory or postgres for trades, and clickhouse for
// price samples when a DSN is configured. Migrations run on open.
func openStores(ctx context.Context, cfg config.StorageConfig) (*stores, error) {
	s := &stores{}

	switch cfg.Backend {
	case storage.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		n, err := migrations.RunPostgres(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info().Int("applied", n).Msg("Postgres migrations applied")
		s.trades = pgstore.NewTradeRecordStore(pool)
	default:
		s.trades = memory.NewTradeRecordStore()
	}

	if cfg.ClickHouseDSN != "" {
		conn, n, err := migrations.RunClickhouse(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		log.Info().Int("applied", n).Msg("ClickHouse migrations applied")
		s.samples = chstore.NewPriceSampleStore(conn)
	} else {
		s.samples = memory.NewPriceSampleStore()
	}

	return s, nil
}

func newAggregator(cfg config.AggregatorConfig) *jupiter.Client {
	return jupiter.NewClient(jupiter.Options{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerTimeout:    cfg.BreakerTimeout,
	})
}

func newOracle(agg *jupiter.Client, cfg *config.Config, agentCfg domain.AgentConfig) *jupiter.PriceOracle {
	return jupiter.NewPriceOracle(agg, agentCfg.QuoteAsset, cfg.Aggregator.ReferenceSizeSOL, agentCfg.AssetDecimals)
}

func newEngine(oracle *jupiter.PriceOracle, st *stores, agentCfg domain.AgentConfig) *analytics.Engine {
	return analytics.NewEngine(analytics.Config{
		Asset:  agentCfg.Asset,
		Window: agentCfg.AnalyticsWindow,
	}, oracle,
		analytics.WithVolumeSource(st.trades),
		analytics.WithSampleStore(st.samples),
	)
}

// newExecutor wires the executor for the configured mode. The returned
// closer releases the WebSocket connection, if any.
func newExecutor(ctx context.Context, cfg *config.Config, agentCfg domain.AgentConfig, rpc *solana.HTTPClient, agg *jupiter.Client) (*executor.Executor, func(), error) {
	closer := func() {}

	var ws solana.WSClient
	if cfg.Solana.WSURL != "" {
		c, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, nil)
		if err != nil {
			// Confirmation falls back to polling.
			log.Warn().Err(err).Str("ws_url", cfg.Solana.WSURL).Msg("WebSocket unavailable, polling for confirmations")
		} else {
			ws = c
			closer = func() { _ = c.Close() }
		}
	}

	exec, err := executor.New(executor.Config{
		Mode:           agentCfg.ExecutionMode,
		QuoteMint:      agentCfg.QuoteAsset,
		AssetDecimals:  agentCfg.AssetDecimals,
		Commitment:     cfg.Solana.Commitment,
		ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		SendMaxRetries: uint(cfg.Solana.SendMaxRetries),
	}, executor.Deps{
		Quotes:    agg,
		Builder:   agg,
		Submitter: rpc,
		Confirmer: solana.NewConfirmer(rpc, ws, cfg.Solana.PollInterval),
		OneCall:   agg,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}
	return exec, closer, nil
}

func newSecrets(cfg config.SecretsConfig) (secrets.Provider, error) {
	if cfg.Provider == "vault" {
		return secrets.NewVaultProvider(secrets.VaultConfig{
			Address: cfg.VaultAddr,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
		})
	}
	return secrets.NewEnvProvider(cfg.EnvPrefix), nil
}

func newPublisher(cfg config.NATSConfig, name string) (events.Publisher, error) {
	if cfg.URL == "" {
		return events.Nop{}, nil
	}
	return events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.URL,
		SubjectPrefix: cfg.SubjectPrefix,
		Name:          name,
	})
}
