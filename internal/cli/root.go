// Package cli implements enrollctl, the operator tool for the enrollment
// backend.  It reuses the server wiring so manual recovery runs through the
// same ledger code paths as the service.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/lingua-enrollment/internal/app"
	"github.com/iliyamo/lingua-enrollment/internal/config"
	"github.com/iliyamo/lingua-enrollment/internal/service"
)

var (
	envFile string
	timeout time.Duration
	rootCmd *cobra.Command

	// loadConfig and openApp are replaced in tests.
	loadConfig = config.Load
	openApp    = func(ctx context.Context, cfg config.Config) (runner, error) {
		a, err := app.New(ctx, cfg, false)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
)

// runner is the part of *app.App the commands need.
type runner interface {
	SweepOnce(ctx context.Context) (int64, error)
	ReconcilePayment(ctx context.Context, paymentID string) (service.ReconcileResult, error)
	RedeliverAnnouncements(ctx context.Context) (int, error)
	Close()
}

func init() {
	rootCmd = newRootCmd()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrollctl",
		Short: "Operator tool for the enrollment backend",
		Long: `enrollctl runs maintenance tasks against the enrollment database.

It reads the same environment (and .env file) as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "deadline for the whole command")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newRelayCmd())
	return cmd
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
