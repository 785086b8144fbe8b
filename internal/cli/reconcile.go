package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var paymentID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-drive reconciliation for one payment",
		Long: `Look the payment up at the processor and apply it to the ledger, exactly
as if its webhook had arrived.  Confirming an already confirmed group is a
no-op, so this is safe to repeat.

Example:
  enrollctl reconcile --payment-id 5f2c1b8e-1d5b-4a53-9c3e-7a8f0d1e2b3c`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID = strings.TrimSpace(paymentID)
			if paymentID == "" {
				return errors.New("--payment-id is required")
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.ReconcilePayment(ctx, paymentID)
			enc := json.NewEncoder(out(cmd))
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", paymentID, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "processor payment id to reconcile")
	return cmd
}
