package workspace

// CheckStatus is the outcome of one verifier check for a round.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "pass"
	CheckFailed  CheckStatus = "fail"
	CheckSkipped CheckStatus = "skipped"
)

// RoundSummary is the externally reportable progress record for one
// round. One is appended to the summary log per round, including rounds
// aborted by a malformed findings document.
type RoundSummary struct {
	Round       int            `json:"round"`
	TotalIssues int            `json:"total_issues"`
	Actionable  int            `json:"actionable"` // mandatory+optional, excluding documented unfixable
	ByCategory  map[string]int `json:"by_category,omitempty"`
	BySeverity  map[string]int `json:"by_severity,omitempty"`

	New        int `json:"new"`
	Resolved   int `json:"resolved"`
	Persisting int `json:"persisting"`
	Unfixable  int `json:"unfixable"`

	GroupsPlanned int `json:"groups_planned"`
	GroupsFailed  int `json:"groups_failed"`

	Build CheckStatus `json:"build"`
	Lint  CheckStatus `json:"lint"`
	Test  CheckStatus `json:"test"`

	Verdict    string `json:"verdict,omitempty"`
	ParseError string `json:"parse_error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// BuildPassed reports whether the round's build check succeeded. A
// build failure invalidates the round's apparent progress even when
// issue counts dropped.
func (s *RoundSummary) BuildPassed() bool {
	return s.Build == CheckPassed
}

// VerifiedOK reports whether every check that ran passed. Skipped lint
// and test checks do not count against the round; only build is
// mandatory for a meaningful validate phase.
func (s *RoundSummary) VerifiedOK() bool {
	if s.Build != CheckPassed {
		return false
	}
	if s.Lint == CheckFailed {
		return false
	}
	if s.Test == CheckFailed {
		return false
	}
	return true
}
