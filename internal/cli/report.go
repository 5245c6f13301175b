package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/migforge/migforge/internal/analysis"
	"github.com/migforge/migforge/internal/catalog"
	"github.com/migforge/migforge/internal/workspace"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect one round's findings",
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize all issues in a round with per-rule file counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadRoundCatalog(cmd)
		if err != nil {
			return err
		}

		rules := analysis.Summarize(cat)
		if len(rules) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No issues found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RULE\tCATEGORY\tSEVERITY\tEFFORT\tINCIDENTS\tFILES")
		totalFiles := make(map[string]bool)
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
				r.RuleID, r.Category, r.Severity, r.Effort, r.Incidents, len(r.Files))
			for _, f := range r.Files {
				totalFiles[f] = true
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d rules across %d files (round %d)\n",
			len(rules), len(totalFiles), cat.Round())
		return nil
	},
}

var reportFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List files with issues, most incidents first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadRoundCatalog(cmd)
		if err != nil {
			return err
		}

		files := analysis.AffectedFiles(cat)
		if len(files) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No issues found.")
			return nil
		}
		for _, fc := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s\n", fc.Incidents, fc.File)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d files have issues (round %d)\n", len(files), cat.Round())
		return nil
	},
}

var reportFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Show all issues in one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadRoundCatalog(cmd)
		if err != nil {
			return err
		}

		issues := analysis.FileIssues(cat, args[0])
		if len(issues) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No issues found for %s.\n", args[0])
			fmt.Fprintln(cmd.OutOrStdout(), "Tip: a bare filename (e.g. pom.xml) matches by suffix.")
			return nil
		}
		for _, is := range issues {
			loc := is.File
			if is.Line > 0 {
				loc = fmt.Sprintf("%s:%d", is.File, is.Line)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%s/%s] %s\n  %s\n",
				is.RuleID, is.Category, is.Severity, loc, is.Message)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d issues (round %d)\n", len(issues), cat.Round())
		return nil
	},
}

// loadRoundCatalog builds a catalog from a round's findings snapshot.
// The --round flag selects a round; the default is the latest.
func loadRoundCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	bundle, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	round, err := resolveRound(cmd, bundle.ws)
	if err != nil {
		return nil, err
	}
	raw, err := bundle.ws.ReadFindings(round)
	if err != nil {
		return nil, fmt.Errorf("read findings for round %d: %w", round, err)
	}
	return catalog.Build(raw, round)
}

// resolveRound picks the requested or latest round.
func resolveRound(cmd *cobra.Command, ws *workspace.Store) (int, error) {
	if flag, _ := cmd.Flags().GetString("round"); flag != "" {
		round, err := strconv.Atoi(flag)
		if err != nil || round < 1 {
			return 0, fmt.Errorf("invalid round %q", flag)
		}
		return round, nil
	}
	latest, err := ws.LatestRound()
	if err != nil {
		return 0, err
	}
	if latest == 0 {
		return 0, fmt.Errorf("workspace has no rounds yet")
	}
	return latest, nil
}

func init() {
	for _, c := range []*cobra.Command{reportSummaryCmd, reportFilesCmd, reportFileCmd} {
		c.Flags().String("round", "", "round number (default: latest)")
		reportCmd.AddCommand(c)
	}
}
