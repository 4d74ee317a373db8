package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(load loader) *cobra.Command {
	var samples int
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print an analytics snapshot for the configured asset",
		Long: `Samples the asset price through the aggregator, merges any persisted
history and prints the resulting analytics snapshot as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			agentCfg, err := cfg.AgentConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := openStores(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer st.Close()

			agg := newAggregator(cfg.Aggregator)
			engine := newEngine(newOracle(agg, cfg, agentCfg), st, agentCfg)
			if _, err := engine.Warm(ctx); err != nil {
				return err
			}

			snap := engine.Refresh(ctx, nil)
			for i := 1; i < samples; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(every):
				}
				snap = engine.Refresh(ctx, &snap)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 1, "Number of price samples to take")
	cmd.Flags().DurationVar(&every, "every", 5*time.Second, "Delay between samples")
	return cmd
}
