package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/bindery/internal/history"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the job history database schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("database_url is not set (BINDERY_DATABASE_URL)")
			}

			store, err := history.Open(cmd.Context(), cfg.DatabaseURL, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context(), command); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			if command != "status" {
				fmt.Printf("Migrations %s applied successfully\n", command)
			}
			return nil
		},
	}

	return cmd
}
