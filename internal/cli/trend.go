package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/migforge/migforge/internal/db"
)

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show the round-by-round issue-count trend",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dbPath := bundle.cfg.EventsDB
		if dbPath == "" {
			dbPath = bundle.ws.EventsDBPath()
		}
		events, err := db.Open(dbPath)
		if err != nil {
			return err
		}
		defer events.Close()

		rows, err := events.QueryTrend()
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No rounds recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROUND\tTOTAL\tACTIONABLE\tNEW\tRESOLVED\tPERSISTING\tUNFIXABLE\tBUILD\tVERDICT")
		for _, t := range rows {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
				t.Round, t.Total, t.Actionable, t.New, t.Resolved, t.Persisting,
				t.Unfixable, t.Build, t.Verdict)
		}
		return w.Flush()
	},
}
