package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRelayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Republish confirmation events the broker never received",
		Long: `Publish a confirmation event for every confirmed reservation and paid
non-slot checkout whose earlier publish failed.  The server runs the same
job after each sweep; this command is for when the broker was down for
longer than the server was up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.RedeliverAnnouncements(ctx)
			fmt.Fprintf(out(cmd), "republished %d confirmation events\n", n)
			if err != nil {
				return fmt.Errorf("relay: %w", err)
			}
			return nil
		},
	}
}
