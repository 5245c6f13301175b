// Package loop owns the migration control loop: a single-threaded state
// machine sequencing Analyze, Parse, Plan, Apply, Validate and
// ExitCheck, round after round, until the run converges or a budget is
// spent. External collaborators are invoked as blocking calls; no two
// rounds ever overlap, and cancellation is honored between rounds only
// so an in-flight fix group never leaves the workspace half-edited.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/migforge/migforge/internal/catalog"
	"github.com/migforge/migforge/internal/config"
	"github.com/migforge/migforge/internal/convergence"
	"github.com/migforge/migforge/internal/ledger"
	"github.com/migforge/migforge/internal/planner"
	"github.com/migforge/migforge/internal/tools"
	"github.com/migforge/migforge/internal/workspace"
)

// Analyzer produces a raw findings document for the project.
type Analyzer interface {
	Analyze(ctx context.Context, outputPath string) ([]byte, error)
}

// Fixer applies one fix group to the project.
type Fixer interface {
	Apply(ctx context.Context, group *planner.FixGroup) (*tools.FixOutcome, error)
}

// Verifier runs the build, lint and test checks.
type Verifier interface {
	Verify(ctx context.Context) *tools.VerifyResult
}

// EventLog records run events for later analysis. It may be nil; the
// loop never fails because the event log is unavailable.
type EventLog interface {
	LogRoundEvent(round int, event string, detail string) error
	LogFixAttempt(round int, rank int, issueKey string, success bool, approach string) error
	SaveRoundStats(s *workspace.RoundSummary) error
}

// Controller sequences the migration rounds.
type Controller struct {
	cfg      *config.Config
	ws       *workspace.Store
	led      *ledger.Ledger
	tracker  *convergence.Tracker
	analyzer Analyzer
	fixer    Fixer
	verifier Verifier
	guidance planner.Guidance
	events   EventLog
	log      zerolog.Logger

	prev *catalog.Catalog
}

// Opts wires a Controller together.
type Opts struct {
	Config   *config.Config
	Store    *workspace.Store
	Ledger   *ledger.Ledger
	Analyzer Analyzer
	Fixer    Fixer
	Verifier Verifier
	Guidance planner.Guidance
	Events   EventLog
	Logger   zerolog.Logger
}

// NewController creates a Controller.
func NewController(opts Opts) *Controller {
	guidance := opts.Guidance
	if guidance == nil {
		guidance = planner.NoGuidance{}
	}
	return &Controller{
		cfg:      opts.Config,
		ws:       opts.Store,
		led:      opts.Ledger,
		analyzer: opts.Analyzer,
		fixer:    opts.Fixer,
		verifier: opts.Verifier,
		guidance: guidance,
		events:   opts.Events,
		log:      opts.Logger,
		tracker: convergence.NewTracker(convergence.Opts{
			StagnationWindow: opts.Config.Loop.StagnationWindow,
			MaxRounds:        opts.Config.Loop.MaxRounds,
			StagnantRoundCap: opts.Config.Loop.StagnantRoundCap,
		}),
	}
}

// Run executes the loop until a terminal state is reached. The returned
// report is non-nil for every terminal status including aborts; the
// error is non-nil only for fatal conditions (analyzer unavailable,
// workspace corruption).
func (c *Controller) Run(ctx context.Context) (*RunReport, error) {
	startRound, resumed, err := c.discover()
	if err != nil {
		return nil, err
	}
	if resumed != nil {
		// The resumed workspace already records a verified converged
		// round; do not invoke the analyzer again.
		c.log.Info().Int("round", resumed.Round).Msg("workspace already converged")
		return c.report(StatusConverged), nil
	}

	for round := startRound; ; round++ {
		// Cancellation is honored between rounds only.
		if err := ctx.Err(); err != nil {
			c.log.Warn().Int("round", round).Msg("run aborted between rounds")
			return c.report(StatusAborted), nil
		}
		if c.budgetSpent(round - 1) {
			c.log.Warn().Int("max_rounds", c.cfg.Loop.MaxRounds).Msg("round budget exhausted")
			return c.report(StatusIncompleteMaxRounds), nil
		}

		status, err := c.runRound(ctx, round)
		if err != nil {
			return nil, err
		}
		if status != statusContinue {
			return c.report(status), nil
		}
	}
}

// statusContinue is the internal non-terminal marker.
const statusContinue = Status("continue")

// runRound executes one full Analyze → ExitCheck cycle.
func (c *Controller) runRound(ctx context.Context, round int) (Status, error) {
	c.log.Info().Int("round", round).Msg("round started")
	summary := &workspace.RoundSummary{
		Round:     round,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Build:     workspace.CheckSkipped,
		Lint:      workspace.CheckSkipped,
		Test:      workspace.CheckSkipped,
	}
	c.logEvent(round, "started", "")

	if err := c.ws.InitRound(round); err != nil {
		return "", err
	}

	// Analyze
	raw, err := c.analyzer.Analyze(ctx, c.ws.FindingsPath(round))
	if err != nil {
		// Fatal: no findings source means no basis for decisions.
		return "", err
	}
	if err := c.ws.SaveFindings(round, raw); err != nil {
		return "", err
	}
	c.logEvent(round, "analyzed", fmt.Sprintf("%d bytes", len(raw)))

	// Parse
	cat, err := catalog.Build(raw, round)
	if err != nil {
		var malformed *catalog.MalformedInputError
		if errors.As(err, &malformed) {
			// Round-local: report the aborted round and let the next
			// round retry after the analyzer invocation is fixed.
			c.log.Error().Int("round", round).Str("reason", malformed.Reason).Msg("findings document malformed, round aborted")
			summary.ParseError = malformed.Reason
			summary.FinishedAt = time.Now().UTC().Format(time.RFC3339)
			c.logEvent(round, "parse_failed", malformed.Reason)
			if err := c.ws.SaveSummary(summary); err != nil {
				return "", err
			}
			return statusContinue, nil
		}
		return "", err
	}
	c.fillCounts(summary, cat)
	c.log.Info().Int("round", round).
		Int("total", summary.TotalIssues).
		Int("new", summary.New).
		Int("resolved", summary.Resolved).
		Int("persisting", summary.Persisting).
		Msg("catalog built")

	// Plan
	plan := planner.Plan(cat, c.led, c.guidance)
	summary.GroupsPlanned = len(plan.Groups)
	c.logEvent(round, "planned", fmt.Sprintf("%d groups, %d skipped", len(plan.Groups), len(plan.Skipped)))

	// Apply. Groups go strictly in priority order, never in parallel:
	// later groups may depend on earlier groups' edits.
	for i := range plan.Groups {
		group := &plan.Groups[i]
		if err := c.applyGroup(ctx, round, group, summary); err != nil {
			return "", err
		}
	}
	c.logEvent(round, "applied", fmt.Sprintf("%d groups, %d failed", summary.GroupsPlanned, summary.GroupsFailed))

	// Validate
	verify := c.verifier.Verify(ctx)
	summary.Build = verify.Build.Status
	summary.Lint = verify.Lint.Status
	summary.Test = verify.Test.Status
	summary.Unfixable = len(c.led.Unfixable())
	if !summary.BuildPassed() {
		// Apparent progress is invalid while the tree does not build;
		// the summary carries the failure regardless of issue counts.
		c.log.Warn().Int("round", round).Msg("build failed after fixes")
	}
	c.logEvent(round, "verified", fmt.Sprintf("build=%s lint=%s test=%s", verify.Build.Status, verify.Lint.Status, verify.Test.Status))

	// ExitCheck
	verdict := c.tracker.Record(summary)
	summary.Verdict = string(verdict)
	summary.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if err := c.ws.SaveSummary(summary); err != nil {
		return "", err
	}
	c.saveStats(summary)
	c.logEvent(round, "verdict", string(verdict))
	c.prev = cat

	switch {
	case verdict == convergence.VerdictConverged && summary.VerifiedOK():
		c.log.Info().Int("round", round).Msg("converged")
		return StatusConverged, nil
	case c.tracker.StagnantCapExceeded():
		c.log.Warn().Int("round", round).Int("stagnant_rounds", c.tracker.StagnantStreak()).Msg("stagnant round cap exceeded")
		return StatusIncompleteExhausted, nil
	case c.tracker.NeedsStrategyChange():
		// Planning signal only, not a halt.
		c.log.Warn().Int("round", round).Msg("no progress across stagnation window, strategy reassessment due")
	}
	return statusContinue, nil
}

// applyGroup delegates one group to the fixer and updates the ledger on
// failure. Successful attempts leave no ledger trace: only failures
// accrue history.
func (c *Controller) applyGroup(ctx context.Context, round int, group *planner.FixGroup, summary *workspace.RoundSummary) error {
	outcome, err := c.fixer.Apply(ctx, group)
	if err != nil {
		outcome = &tools.FixOutcome{Success: false, Approach: err.Error()}
	}

	for _, key := range group.Keys() {
		c.logAttempt(round, group.PriorityRank, key.String(), outcome.Success, outcome.Approach)
	}
	if outcome.Success {
		c.log.Debug().Int("round", round).Int("rank", group.PriorityRank).Msg("fix group applied")
		return nil
	}

	summary.GroupsFailed++
	c.log.Warn().Int("round", round).Int("rank", group.PriorityRank).
		Str("approach", outcome.Approach).Msg("fix group failed")

	for _, key := range group.Keys() {
		if err := c.led.RecordAttempt(key, outcome.Approach); err != nil {
			return fmt.Errorf("record attempt for %s: %w", key, err)
		}
		if c.led.IsUnfixable(key) || c.led.ShouldRetry(key) {
			continue
		}
		rec, _ := c.led.Get(key)
		rationale := fmt.Sprintf("retry budget exhausted after %d failed approaches; last approach: %s",
			rec.Attempts, outcome.Approach)
		if err := c.led.MarkUnfixable(key, rationale); err != nil {
			return fmt.Errorf("mark unfixable %s: %w", key, err)
		}
		c.logEvent(round, "escalated", key.String())
		c.log.Warn().Str("issue", key.String()).Msg("issue documented unfixable")
	}
	return nil
}

// fillCounts populates the summary's issue counters from the catalog
// and the diff against the previous round.
func (c *Controller) fillCounts(summary *workspace.RoundSummary, cat *catalog.Catalog) {
	summary.TotalIssues = cat.Len()
	summary.Actionable = cat.Filter(func(is catalog.Issue) bool {
		return is.Actionable() && !c.led.IsUnfixable(is.Key())
	}).Len()

	summary.ByCategory = make(map[string]int)
	for k, v := range cat.CountByCategory() {
		summary.ByCategory[string(k)] = v
	}
	summary.BySeverity = make(map[string]int)
	for k, v := range cat.CountBySeverity() {
		summary.BySeverity[string(k)] = v
	}

	diff := catalog.Diff(c.prev, cat)
	summary.New = len(diff.New)
	summary.Resolved = len(diff.Resolved)
	summary.Persisting = len(diff.Persisting)
}

// discover prepares a fresh or resumed run: replays the summary log
// into the tracker and reloads the previous round's catalog so planner
// decisions match what an uninterrupted run would have made. It returns
// the next round number, or the converged summary when the workspace
// needs no further work.
func (c *Controller) discover() (int, *workspace.RoundSummary, error) {
	summaries, err := c.ws.SummaryLog()
	if err != nil {
		return 0, nil, err
	}
	for i := range summaries {
		s := &summaries[i]
		if s.ParseError != "" {
			continue
		}
		c.tracker.Record(s)
		if s.Verdict == string(convergence.VerdictConverged) && s.VerifiedOK() {
			return 0, s, nil
		}
	}

	latest, err := c.ws.LatestRound()
	if err != nil {
		return 0, nil, err
	}
	if latest > 0 {
		if raw, err := c.ws.ReadFindings(latest); err == nil {
			if cat, err := catalog.Build(raw, latest); err == nil {
				c.prev = cat
			}
		}
		c.log.Info().Int("rounds_completed", latest).Msg("resuming existing workspace")
	}
	return latest + 1, nil, nil
}

// budgetSpent reports whether completing roundsDone rounds spends the
// configured ceiling. Rounds aborted by malformed input count too, so
// the run terminates even if the analyzer never produces parseable
// output again.
func (c *Controller) budgetSpent(roundsDone int) bool {
	return c.cfg.Loop.MaxRounds > 0 && roundsDone >= c.cfg.Loop.MaxRounds
}

// report assembles the terminal run report.
func (c *Controller) report(status Status) *RunReport {
	summaries, err := c.ws.SummaryLog()
	if err != nil {
		c.log.Error().Err(err).Msg("read summary log for report")
	}
	return &RunReport{
		Status:    status,
		Rounds:    summaries,
		Unfixable: c.led.Unfixable(),
	}
}

func (c *Controller) logEvent(round int, event, detail string) {
	if c.events == nil {
		return
	}
	if err := c.events.LogRoundEvent(round, event, detail); err != nil {
		c.log.Warn().Err(err).Msg("log round event")
	}
}

func (c *Controller) logAttempt(round, rank int, key string, success bool, approach string) {
	if c.events == nil {
		return
	}
	if err := c.events.LogFixAttempt(round, rank, key, success, approach); err != nil {
		c.log.Warn().Err(err).Msg("log fix attempt")
	}
}

func (c *Controller) saveStats(summary *workspace.RoundSummary) {
	if c.events == nil {
		return
	}
	if err := c.events.SaveRoundStats(summary); err != nil {
		c.log.Warn().Err(err).Msg("save round stats")
	}
}
