package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/lingua-enrollment/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Create the teachers, timeslots, reservations, checkouts and payment_events
tables if they do not exist.  Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(out(cmd), "schema applied to %s\n", cfg.DBName)
			return nil
		},
	}
}
