package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/migforge/migforge/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the escalation ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attempt records and documented-unfixable issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		led, err := ledger.Open(bundle.ws.LedgerPath(), bundle.cfg.Loop.RetryThreshold)
		if err != nil {
			return err
		}
		defer led.Close()

		records := led.Records()
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty: no fix attempt has failed yet.")
			return nil
		}

		w := cmd.OutOrStdout()
		for _, rec := range records {
			fmt.Fprintf(w, "%s [%s] attempts=%d\n", rec.Key, rec.Status, rec.Attempts)
			for i, approach := range rec.ApproachesTried {
				fmt.Fprintf(w, "  approach %d: %s\n", i+1, approach)
			}
			if rec.Rationale != "" {
				fmt.Fprintf(w, "  rationale: %s\n", rec.Rationale)
			}
		}
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
}
