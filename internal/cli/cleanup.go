package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quizbee-service/internal/config"
	"quizbee-service/internal/logger"
)

// NewCleanupCmd removes abandoned sessions once and exits.
func NewCleanupCmd(configPath *string) *cobra.Command {
	var grace string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired, never-submitted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rt, err := newRuntime(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			if grace == "" {
				grace = cfg.Cleanup.Grace
			}
			n, err := rt.service.CleanupExpired(cmd.Context(), config.TTLDuration(grace, 0))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&grace, "grace", "", "only remove sessions expired longer than this (e.g. 1h)")
	return cmd
}
