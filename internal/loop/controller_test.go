package loop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/migforge/migforge/internal/catalog"
	"github.com/migforge/migforge/internal/config"
	"github.com/migforge/migforge/internal/ledger"
	"github.com/migforge/migforge/internal/planner"
	"github.com/migforge/migforge/internal/tools"
	"github.com/migforge/migforge/internal/workspace"
)

// scriptAnalyzer replays a sequence of findings documents, repeating the
// last one once the script runs out.
type scriptAnalyzer struct {
	docs  []string
	calls int
}

func (a *scriptAnalyzer) Analyze(ctx context.Context, outputPath string) ([]byte, error) {
	i := a.calls
	a.calls++
	if i >= len(a.docs) {
		i = len(a.docs) - 1
	}
	return []byte(a.docs[i]), nil
}

type failingAnalyzer struct{ err error }

func (a *failingAnalyzer) Analyze(ctx context.Context, outputPath string) ([]byte, error) {
	return nil, a.err
}

// scriptFixer reports success or failure for every group.
type scriptFixer struct {
	succeed bool
	calls   int
	groups  []*planner.FixGroup
}

func (f *scriptFixer) Apply(ctx context.Context, group *planner.FixGroup) (*tools.FixOutcome, error) {
	f.calls++
	f.groups = append(f.groups, group)
	if f.succeed {
		return &tools.FixOutcome{Success: true, Approach: "applied the planned edit"}, nil
	}
	return &tools.FixOutcome{Success: false, Approach: "mechanical rewrite did not compile"}, nil
}

type stubVerifier struct {
	result *tools.VerifyResult
	calls  int
}

func (v *stubVerifier) Verify(ctx context.Context) *tools.VerifyResult {
	v.calls++
	return v.result
}

func passVerify() *tools.VerifyResult {
	return &tools.VerifyResult{
		Build: tools.CheckResult{Name: "build", Status: workspace.CheckPassed},
		Lint:  tools.CheckResult{Name: "lint", Status: workspace.CheckSkipped},
		Test:  tools.CheckResult{Name: "test", Status: workspace.CheckSkipped},
	}
}

func failBuildVerify() *tools.VerifyResult {
	return &tools.VerifyResult{
		Build: tools.CheckResult{Name: "build", Status: workspace.CheckFailed, ExitCode: 1},
		Lint:  tools.CheckResult{Name: "lint", Status: workspace.CheckSkipped},
		Test:  tools.CheckResult{Name: "test", Status: workspace.CheckSkipped},
	}
}

// oneIssueDoc is a findings document with a single mandatory issue.
func oneIssueDoc(rule, file string, line int) string {
	return fmt.Sprintf(`
- name: rs
  violations:
    %s:
      description: d
      category: mandatory
      incidents:
        - uri: file://%s
          message: m
          lineNumber: %d
`, rule, file, line)
}

const emptyDoc = "[]\n"

type testLoop struct {
	ctrl     *Controller
	store    *workspace.Store
	led      *ledger.Ledger
	analyzer *scriptAnalyzer
	fixer    *scriptFixer
	verifier *stubVerifier
}

func newTestLoop(t *testing.T, loopCfg config.Loop, docs []string) *testLoop {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		Project:   base,
		Workspace: filepath.Join(base, ".migration-workspace"),
		Provider:  "java",
		Analyzer:  config.Tool{Command: "analyze"},
		Fixer:     config.Tool{Command: "fix"},
		Verify:    config.Verify{Build: config.Tool{Command: "build"}},
		Loop:      loopCfg,
	}

	store, err := workspace.Open(cfg.Workspace)
	if err != nil {
		t.Fatal(err)
	}
	led, err := ledger.Open(store.LedgerPath(), cfg.Loop.RetryThreshold)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { led.Close() })

	tl := &testLoop{
		store:    store,
		led:      led,
		analyzer: &scriptAnalyzer{docs: docs},
		fixer:    &scriptFixer{succeed: true},
		verifier: &stubVerifier{result: passVerify()},
	}
	tl.ctrl = NewController(Opts{
		Config:   cfg,
		Store:    store,
		Ledger:   led,
		Analyzer: tl.analyzer,
		Fixer:    tl.fixer,
		Verifier: tl.verifier,
		Logger:   zerolog.Nop(),
	})
	return tl
}

func TestRun_AlreadyCleanProject(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 10}, []string{emptyDoc})

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusConverged {
		t.Errorf("status = %q, want converged", report.Status)
	}
	if tl.analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1", tl.analyzer.calls)
	}
	if tl.fixer.calls != 0 {
		t.Errorf("fixer must not run on a clean project, got %d calls", tl.fixer.calls)
	}
	if len(report.Rounds) != 1 || report.Rounds[0].Verdict != "converged" {
		t.Errorf("rounds = %+v", report.Rounds)
	}
}

func TestRun_TwoRoundConvergence(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 10, RetryThreshold: 2}, []string{
		oneIssueDoc("ejb-rewrite-00001", "/src/A.java", 10),
		emptyDoc,
	})

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusConverged {
		t.Fatalf("status = %q, want converged", report.Status)
	}
	if tl.fixer.calls != 1 {
		t.Errorf("fixer calls = %d, want 1", tl.fixer.calls)
	}
	if len(report.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(report.Rounds))
	}
	r1, r2 := report.Rounds[0], report.Rounds[1]
	if r1.TotalIssues != 1 || r1.New != 1 || r1.Verdict != "improving" {
		t.Errorf("round 1 = %+v", r1)
	}
	if r2.TotalIssues != 0 || r2.Resolved != 1 || r2.Verdict != "converged" {
		t.Errorf("round 2 = %+v", r2)
	}
	if len(report.Unfixable) != 0 {
		t.Errorf("no issue should be unfixable: %v", report.Unfixable)
	}
}

// A fix group that fails on consecutive rounds until the retry budget is
// spent gets documented unfixable; the next round plans around it and
// the run can still converge.
func TestRun_EscalationAfterRetryBudget(t *testing.T) {
	doc := oneIssueDoc("native-jni-00001", "/src/Native.java", 5)
	tl := newTestLoop(t, config.Loop{MaxRounds: 10, RetryThreshold: 2, StagnationWindow: 2}, []string{doc})
	tl.fixer.succeed = false

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusConverged {
		t.Fatalf("status = %q, want converged with the issue documented", report.Status)
	}

	// Two failed attempts, then the issue never enters a plan again.
	if tl.fixer.calls != 2 {
		t.Errorf("fixer calls = %d, want 2", tl.fixer.calls)
	}
	if len(report.Unfixable) != 1 {
		t.Fatalf("expected 1 unfixable record, got %d", len(report.Unfixable))
	}
	rec := report.Unfixable[0]
	if rec.Key.RuleID != "native-jni-00001" || rec.Attempts != 2 {
		t.Errorf("unfixable record = %+v", rec)
	}
	if rec.Rationale == "" {
		t.Error("unfixable record must carry a rationale")
	}

	if len(report.Rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(report.Rounds))
	}
	last := report.Rounds[2]
	if last.TotalIssues != 1 || last.Actionable != 0 || last.Unfixable != 1 {
		t.Errorf("final round = %+v", last)
	}
	if last.GroupsPlanned != 0 {
		t.Errorf("documented-unfixable issue must not be planned, got %d groups", last.GroupsPlanned)
	}
}

func TestRun_MaxRoundsExhausted(t *testing.T) {
	doc := oneIssueDoc("stubborn-00001", "/src/A.java", 1)
	tl := newTestLoop(t, config.Loop{MaxRounds: 3, RetryThreshold: 99}, []string{doc})
	tl.fixer.succeed = false

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusIncompleteMaxRounds {
		t.Errorf("status = %q, want incomplete-max-rounds", report.Status)
	}
	if len(report.Rounds) != 3 {
		t.Errorf("expected exactly 3 rounds, got %d", len(report.Rounds))
	}
	if tl.analyzer.calls != 3 {
		t.Errorf("analyzer calls = %d, want 3", tl.analyzer.calls)
	}
}

func TestRun_StagnantCapExceeded(t *testing.T) {
	doc := oneIssueDoc("stubborn-00001", "/src/A.java", 1)
	tl := newTestLoop(t, config.Loop{
		MaxRounds:        -1,
		RetryThreshold:   99,
		StagnationWindow: 2,
		StagnantRoundCap: 2,
	}, []string{doc})
	tl.fixer.succeed = false

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusIncompleteExhausted {
		t.Errorf("status = %q, want incomplete-exhausted", report.Status)
	}
	// Baseline round plus two stagnant rounds.
	if len(report.Rounds) != 3 {
		t.Errorf("expected 3 rounds, got %d", len(report.Rounds))
	}
}

// A malformed findings document aborts its round but not the run; the
// aborted round still spends round budget.
func TestRun_MalformedRoundContinues(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 10}, []string{
		"{\"violations\": \"not a ruleset list\"}",
		emptyDoc,
	})

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusConverged {
		t.Fatalf("status = %q, want converged", report.Status)
	}
	if len(report.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(report.Rounds))
	}
	if report.Rounds[0].ParseError == "" {
		t.Error("round 1 must record the parse error")
	}
	if report.Rounds[1].Verdict != "converged" {
		t.Errorf("round 2 verdict = %q", report.Rounds[1].Verdict)
	}
}

func TestRun_MalformedRoundsSpendBudget(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 2}, []string{
		"{\"violations\": \"never parseable\"}",
	})

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusIncompleteMaxRounds {
		t.Errorf("status = %q, want incomplete-max-rounds", report.Status)
	}
	if tl.analyzer.calls != 2 {
		t.Errorf("analyzer calls = %d, want 2", tl.analyzer.calls)
	}
}

func TestRun_AnalyzerUnavailableIsFatal(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 10}, []string{emptyDoc})
	tl.ctrl.analyzer = &failingAnalyzer{
		err: fmt.Errorf("%w: kantra binary not found", tools.ErrAnalyzerUnavailable),
	}

	report, err := tl.ctrl.Run(context.Background())
	if !errors.Is(err, tools.ErrAnalyzerUnavailable) {
		t.Fatalf("expected ErrAnalyzerUnavailable, got %v", err)
	}
	if report != nil {
		t.Errorf("fatal error must not produce a report, got %+v", report)
	}
}

func TestRun_CancelledBeforeFirstRound(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 10}, []string{emptyDoc})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := tl.ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusAborted {
		t.Errorf("status = %q, want aborted", report.Status)
	}
	if tl.analyzer.calls != 0 {
		t.Errorf("aborted run must not invoke the analyzer, got %d calls", tl.analyzer.calls)
	}
}

func TestRun_BuildFailureBlocksConvergence(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 2}, []string{emptyDoc})
	tl.verifier.result = failBuildVerify()

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Zero issues but a broken build must never report converged; the
	// run keeps going until the round budget stops it.
	if report.Status != StatusIncompleteMaxRounds {
		t.Fatalf("status = %q, want incomplete-max-rounds", report.Status)
	}
	for _, s := range report.Rounds {
		if s.Build != workspace.CheckFailed {
			t.Errorf("round %d build = %q, want fail", s.Round, s.Build)
		}
	}
}

// A workspace whose log already holds a verified converged round needs
// no further analysis.
func TestRun_ResumeConvergedWorkspace(t *testing.T) {
	tl := newTestLoop(t, config.Loop{MaxRounds: 10}, []string{emptyDoc})
	if err := tl.store.InitRound(1); err != nil {
		t.Fatal(err)
	}
	if err := tl.store.SaveSummary(&workspace.RoundSummary{
		Round:   1,
		Build:   workspace.CheckPassed,
		Lint:    workspace.CheckSkipped,
		Test:    workspace.CheckSkipped,
		Verdict: "converged",
	}); err != nil {
		t.Fatal(err)
	}

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusConverged {
		t.Errorf("status = %q, want converged", report.Status)
	}
	if tl.analyzer.calls != 0 {
		t.Errorf("converged workspace must not re-run analysis, got %d calls", tl.analyzer.calls)
	}
}

// Resuming an interrupted run continues from the next round and diffs
// against the last completed round's findings.
func TestRun_ResumeInterruptedWorkspace(t *testing.T) {
	doc := oneIssueDoc("ejb-rewrite-00001", "/src/A.java", 10)
	tl := newTestLoop(t, config.Loop{MaxRounds: 10, RetryThreshold: 2}, []string{emptyDoc})

	// Simulate a prior run that completed round 1 and was killed.
	if err := tl.store.SaveFindings(1, []byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := tl.store.SaveSummary(&workspace.RoundSummary{
		Round: 1, TotalIssues: 1, Actionable: 1, New: 1,
		Build: workspace.CheckPassed, Lint: workspace.CheckSkipped, Test: workspace.CheckSkipped,
		Verdict: "improving",
	}); err != nil {
		t.Fatal(err)
	}

	report, err := tl.ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != StatusConverged {
		t.Fatalf("status = %q, want converged", report.Status)
	}
	if tl.analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1 (round 2 only)", tl.analyzer.calls)
	}
	if len(report.Rounds) != 2 {
		t.Fatalf("expected 2 rounds in the log, got %d", len(report.Rounds))
	}
	r2 := report.Rounds[1]
	if r2.Round != 2 {
		t.Errorf("resumed round number = %d, want 2", r2.Round)
	}
	if r2.Resolved != 1 {
		t.Errorf("round 2 must diff against the reloaded round 1 catalog, resolved = %d", r2.Resolved)
	}
}

func TestRun_GroupsAppliedInPriorityOrder(t *testing.T) {
	doc := `
- name: rs
  violations:
    ejb-rewrite-00001:
      category: mandatory
      incidents:
        - uri: file:///src/A.java
          message: m
          lineNumber: 1
    maven-plugin-00001:
      category: mandatory
      incidents:
        - uri: file:///pom.xml
          message: m
          lineNumber: 2
`
	tl := newTestLoop(t, config.Loop{MaxRounds: 1}, []string{doc})

	if _, err := tl.ctrl.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(tl.fixer.groups) != 2 {
		t.Fatalf("expected 2 groups applied, got %d", len(tl.fixer.groups))
	}
	if tl.fixer.groups[0].Members[0].RuleID != "maven-plugin-00001" {
		t.Errorf("build-config group must apply first, got %q", tl.fixer.groups[0].Members[0].RuleID)
	}
	if tl.fixer.groups[0].PriorityRank >= tl.fixer.groups[1].PriorityRank {
		t.Errorf("ranks out of order: %d then %d", tl.fixer.groups[0].PriorityRank, tl.fixer.groups[1].PriorityRank)
	}
}

func TestRunReport_Render(t *testing.T) {
	report := &RunReport{
		Status: StatusIncompleteMaxRounds,
		Rounds: []workspace.RoundSummary{
			{Round: 1, TotalIssues: 5, Actionable: 4, New: 5, Build: workspace.CheckPassed, Verdict: "improving"},
			{Round: 2, ParseError: "bad document"},
		},
		Unfixable: []ledger.AttemptRecord{{
			Key:             catalog.Key{RuleID: "rule-1", File: "/a.java", Line: 3},
			Attempts:        2,
			ApproachesTried: []string{"a", "b"},
			Status:          ledger.StatusUnfixable,
			Rationale:       "no automatable fix",
		}},
	}

	var buf strings.Builder
	if err := report.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"incomplete-max-rounds", "bad document", "no automatable fix", "attempts: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
}
