package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"solana-mm-agent/internal/agent"
	"solana-mm-agent/internal/api"
	"solana-mm-agent/internal/solana"
)

func newRunCmd(load loader) *cobra.Command {
	var noAPI bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			agentCfg, err := cfg.AgentConfig()
			if err != nil {
				return err
			}

			st, err := openStores(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer st.Close()

			rpc := solana.NewHTTPClient(cfg.Solana.RPCURL, solana.WithMaxRetries(cfg.Solana.RPCMaxRetries))
			agg := newAggregator(cfg.Aggregator)
			oracle := newOracle(agg, cfg, agentCfg)

			engine := newEngine(oracle, st, agentCfg)
			if n, err := engine.Warm(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to warm price history")
			} else if n > 0 {
				log.Info().Int("samples", n).Msg("Price history warmed")
			}

			exec, closeWS, err := newExecutor(ctx, cfg, agentCfg, rpc, agg)
			if err != nil {
				return err
			}
			defer closeWS()

			provider, err := newSecrets(cfg.Secrets)
			if err != nil {
				return err
			}

			publisher, err := newPublisher(cfg.NATS, agentCfg.Name)
			if err != nil {
				return err
			}
			defer publisher.Close()

			a, err := agent.New(ctx, agentCfg, agent.Deps{
				Accounts:  rpc,
				Executor:  exec,
				Analytics: engine,
				Prices:    oracle,
				Secrets:   provider,
				Trades:    st.trades,
				Events:    publisher,
			})
			if err != nil {
				return err
			}
			defer a.Stop()

			if agentCfg.Enabled {
				if err := a.Start(ctx); err != nil {
					return fmt.Errorf("start agent: %w", err)
				}
			} else {
				log.Info().Str("agent", a.Name()).Msg("Agent disabled, waiting for POST /start")
			}

			if noAPI {
				<-ctx.Done()
				log.Info().Msg("Shutting down")
				return nil
			}

			server := api.NewServer(cfg.API.Addr(), a)
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				fmt.Fprintln(os.Stderr, err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not serve the HTTP control surface")
	return cmd
}
