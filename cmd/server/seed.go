package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/Canvass/internal/seed"
)

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo users, surveys and responses into the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			sum, err := seed.Run(ctx, store, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d surveys, %d invitations, %d responses (password %q)\n",
				sum.Users, sum.Surveys, sum.Invitations, sum.Responses, seed.DemoPassword)
			return nil
		},
	}
}
