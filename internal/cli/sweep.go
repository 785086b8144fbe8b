package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Cancel expired pending holds once",
		Long: `Run one expiry sweep: every pending reservation whose hold deadline has
passed is cancelled and its slot becomes available again.

Useful when the server is down or the sweep interval is long.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(out(cmd), "cancelled %d expired holds\n", n)
			return nil
		},
	}
}
