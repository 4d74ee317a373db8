// Command agent runs an autonomous market maker agent on Solana.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"solana-mm-agent/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "agent",
		Short:         "Autonomous Solana market maker agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default ./configs/agent.yaml)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
		return cfg, nil
	}

	rootCmd.AddCommand(newRunCmd(load))
	rootCmd.AddCommand(newAnalyzeCmd(load))
	rootCmd.AddCommand(newMigrateCmd(load))
	rootCmd.AddCommand(newKeygenCmd())

	return rootCmd
}

type loader func() (*config.Config, error)
