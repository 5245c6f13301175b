// Package convergence classifies round-over-round progress and enforces
// the run's round budgets. The hard max-rounds ceiling is the primary
// safety property of the whole loop: a fixer that cycles between two
// code states must still terminate.
package convergence

import "github.com/migforge/migforge/internal/workspace"

// Verdict classifies one round's progress relative to the previous round.
type Verdict string

const (
	VerdictConverged Verdict = "converged"
	VerdictImproving Verdict = "improving"
	VerdictStagnant  Verdict = "stagnant"
	VerdictRegressed Verdict = "regressed"
)

// Tracker compares round summaries across rounds. It is fed exactly one
// summary per round, in round order.
type Tracker struct {
	stagnationWindow int
	maxRounds        int // <= 0 means unbounded
	stagnantRoundCap int // <= 0 means no cap

	rounds         int
	prevTotal      int
	stagnantStreak int
}

// Opts configures a Tracker.
type Opts struct {
	StagnationWindow int // consecutive unchanged rounds before strategy reassessment; default 2
	MaxRounds        int // hard round ceiling; <= 0 is unbounded
	StagnantRoundCap int // consecutive stagnant rounds before giving up; <= 0 disables
}

// NewTracker creates a Tracker.
func NewTracker(opts Opts) *Tracker {
	if opts.StagnationWindow <= 0 {
		opts.StagnationWindow = 2
	}
	return &Tracker{
		stagnationWindow: opts.StagnationWindow,
		maxRounds:        opts.MaxRounds,
		stagnantRoundCap: opts.StagnantRoundCap,
	}
}

// Record folds one round summary into the tracker and returns the
// progress verdict for that round. All comparisons use the actionable
// count: mandatory and optional issues not documented unfixable.
func (t *Tracker) Record(s *workspace.RoundSummary) Verdict {
	total := s.Actionable
	first := t.rounds == 0
	prev := t.prevTotal

	t.rounds++
	t.prevTotal = total

	if total == 0 {
		t.stagnantStreak = 0
		return VerdictConverged
	}
	if first {
		// Baseline round: nothing to compare against yet.
		t.stagnantStreak = 0
		return VerdictImproving
	}

	switch {
	case total < prev:
		t.stagnantStreak = 0
		return VerdictImproving
	case total > prev:
		t.stagnantStreak = 0
		return VerdictRegressed
	default:
		t.stagnantStreak++
		return VerdictStagnant
	}
}

// Rounds returns the number of rounds recorded so far.
func (t *Tracker) Rounds() int { return t.rounds }

// StagnantStreak returns the count of consecutive stagnant verdicts
// ending at the most recent round.
func (t *Tracker) StagnantStreak() int { return t.stagnantStreak }

// NeedsStrategyChange reports whether the issue count has been unchanged
// for the stagnation window. This is a planning signal, not a halt: the
// loop continues unless the stagnant round cap is also exceeded.
func (t *Tracker) NeedsStrategyChange() bool {
	// A streak of w-1 stagnant verdicts means w consecutive rounds saw
	// the same count.
	return t.stagnantStreak >= t.stagnationWindow-1 && t.stagnantStreak > 0
}

// BudgetExhausted reports whether the hard max-rounds ceiling is spent.
func (t *Tracker) BudgetExhausted() bool {
	return t.maxRounds > 0 && t.rounds >= t.maxRounds
}

// StagnantCapExceeded reports whether the run has been stagnant for more
// consecutive rounds than the configured cap allows.
func (t *Tracker) StagnantCapExceeded() bool {
	return t.stagnantRoundCap > 0 && t.stagnantStreak >= t.stagnantRoundCap
}
