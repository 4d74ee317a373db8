package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations to the configured stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			st.Close()
			log.Info().Str("backend", cfg.Storage.Backend).Msg("Migrations complete")
			return nil
		},
	}
}
