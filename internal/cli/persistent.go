package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/migforge/migforge/internal/analysis"
)

var persistentCmd = &cobra.Command{
	Use:   "persistent",
	Short: "Find issues persisting across rounds",
	Long: `Examines the workspace's round snapshots and reports rules that survived
multiple analysis rounds (the issues the fixer is struggling with),
including per-round incident counts and a worsening/improving/stable trend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		minRounds, _ := cmd.Flags().GetInt("min-rounds")

		rules, err := analysis.PersistentRules(bundle.ws, minRounds)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No issues persisted %d+ rounds.\n", minRounds)
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%d rules persisting %d+ rounds:\n\n", len(rules), minRounds)
		for _, r := range rules {
			fmt.Fprintf(w, "%s [%s/%s, effort %d] %s, %d rounds\n",
				r.RuleID, r.Category, r.Severity, r.Effort, r.Trend, r.Rounds)
			fmt.Fprintf(w, "  %s\n", r.Message)
			for _, rc := range r.ByRound {
				fmt.Fprintf(w, "  round %d: %d incidents, %d files\n", rc.Round, rc.Incidents, rc.Files)
			}
			for _, f := range r.Files {
				fmt.Fprintf(w, "  - %s\n", f)
			}
			fmt.Fprintln(w)
		}
		return nil
	},
}

func init() {
	persistentCmd.Flags().Int("min-rounds", 3, "rounds an issue must persist to be reported")
}
