package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "migforge",
	Short: "migforge is a migration loop orchestrator",
	Long: `migforge drives a repeated analyze → plan → fix → validate cycle over a
codebase until the static-analysis oracle reports zero outstanding issues
or the remainder is documented unfixable.

All run state lives in the migration workspace directory (round snapshots,
an append-only escalation ledger, and SQLite for run events), so an
interrupted run resumes where it left off.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config YAML (default: ./migforge.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(persistentCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the --config flag or falls back to the default
// search locations.
func loadConfig(cmd *cobra.Command) (*configBundle, error) {
	path, _ := cmd.Flags().GetString("config")
	return openBundle(path)
}
