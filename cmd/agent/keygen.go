package main

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"solana-mm-agent/internal/solana"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new agent seed and print its address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := solana.GenerateSeed()
			if err != nil {
				return err
			}
			kp, err := solana.NewKeypairFromSeed(seed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", kp.Address())
			fmt.Fprintf(out, "seed:    %s\n", base58.Encode(seed))
			fmt.Fprintf(out, "secret:  %s\n", kp.SecretBase58())
			return nil
		},
	}
}
