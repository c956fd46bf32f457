package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSweepCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and stale rate limit records once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}

			svc, err := buildService(ctx, cfg, log.Logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.engine.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep incomplete")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
			return err
		},
	}
}
