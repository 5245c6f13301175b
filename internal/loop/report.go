package loop

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/migforge/migforge/internal/ledger"
	"github.com/migforge/migforge/internal/workspace"
)

// Status is a terminal state of the run.
type Status string

const (
	// StatusConverged: no mandatory or optional issues remain and
	// verification passed.
	StatusConverged Status = "converged"
	// StatusIncompleteMaxRounds: the hard round ceiling was spent with
	// issues remaining.
	StatusIncompleteMaxRounds Status = "incomplete-max-rounds"
	// StatusIncompleteExhausted: progress stalled past the stagnant
	// round cap.
	StatusIncompleteExhausted Status = "incomplete-exhausted"
	// StatusAborted: the run was cancelled between rounds.
	StatusAborted Status = "aborted"
)

// RunReport is the terminal report: final status, round-by-round
// issue-count trend, and every documented-unfixable issue with its
// rationale.
type RunReport struct {
	Status    Status                   `json:"status"`
	Rounds    []workspace.RoundSummary `json:"rounds"`
	Unfixable []ledger.AttemptRecord   `json:"unfixable,omitempty"`
}

// Render writes a human-readable run report.
func (r *RunReport) Render(w io.Writer) error {
	fmt.Fprintf(w, "Final status: %s\n\n", r.Status)

	if len(r.Rounds) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUND\tTOTAL\tACTIONABLE\tNEW\tRESOLVED\tPERSISTING\tUNFIXABLE\tBUILD\tVERDICT")
		for _, s := range r.Rounds {
			if s.ParseError != "" {
				fmt.Fprintf(tw, "%d\t-\t-\t-\t-\t-\t-\t-\taborted: %s\n", s.Round, s.ParseError)
				continue
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
				s.Round, s.TotalIssues, s.Actionable, s.New, s.Resolved,
				s.Persisting, s.Unfixable, s.Build, s.Verdict)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Unfixable) > 0 {
		fmt.Fprintf(w, "\nDocumented unfixable (%d):\n", len(r.Unfixable))
		for _, rec := range r.Unfixable {
			fmt.Fprintf(w, "  %s\n", rec.Key)
			fmt.Fprintf(w, "    attempts: %d\n", rec.Attempts)
			for i, approach := range rec.ApproachesTried {
				fmt.Fprintf(w, "    approach %d: %s\n", i+1, approach)
			}
			fmt.Fprintf(w, "    rationale: %s\n", rec.Rationale)
		}
	}
	return nil
}
