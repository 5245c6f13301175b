package tools

import (
	"context"
	"time"

	"github.com/migforge/migforge/internal/workspace"
)

// CheckResult is one verifier check's outcome with captured output.
type CheckResult struct {
	Name     string                `json:"name"`
	Status   workspace.CheckStatus `json:"status"`
	ExitCode int                   `json:"exit_code"`
	Output   string                `json:"output,omitempty"`
	Duration time.Duration         `json:"duration"`
}

// VerifyResult aggregates the build, lint and test checks for a round.
type VerifyResult struct {
	Build CheckResult `json:"build"`
	Lint  CheckResult `json:"lint"`
	Test  CheckResult `json:"test"`
}

// VerifierCheck configures one verifier check. An empty command means
// the check is not configured and reports skipped, which is not a
// failure; only build is mandatory for a meaningful validate phase.
type VerifierCheck struct {
	Command string
	Timeout time.Duration
}

// Verifier runs the build, lint and test checks in that order.
type Verifier struct {
	runner  CommandRunner
	project string
	build   VerifierCheck
	lint    VerifierCheck
	test    VerifierCheck
}

// VerifierOpts configures a Verifier.
type VerifierOpts struct {
	Project string
	Build   VerifierCheck
	Lint    VerifierCheck
	Test    VerifierCheck
}

// NewVerifier creates a Verifier.
func NewVerifier(runner CommandRunner, opts VerifierOpts) *Verifier {
	return &Verifier{
		runner:  runner,
		project: opts.Project,
		build:   opts.Build,
		lint:    opts.Lint,
		test:    opts.Test,
	}
}

// Verify runs the configured checks. When the build fails, lint and
// test are skipped: their results would describe a tree that does not
// compile.
func (v *Verifier) Verify(ctx context.Context) *VerifyResult {
	result := &VerifyResult{
		Build: v.runCheck(ctx, "build", v.build),
		Lint:  CheckResult{Name: "lint", Status: workspace.CheckSkipped},
		Test:  CheckResult{Name: "test", Status: workspace.CheckSkipped},
	}
	if result.Build.Status == workspace.CheckFailed {
		return result
	}
	result.Lint = v.runCheck(ctx, "lint", v.lint)
	result.Test = v.runCheck(ctx, "test", v.test)
	return result
}

// runCheck executes one check command, or reports skipped when none is
// configured.
func (v *Verifier) runCheck(ctx context.Context, name string, check VerifierCheck) CheckResult {
	if check.Command == "" {
		return CheckResult{Name: name, Status: workspace.CheckSkipped}
	}

	start := time.Now()
	stdout, stderr, exitCode, err := runWithTimeout(ctx, v.runner, v.project, check.Command, check.Timeout)
	result := CheckResult{
		Name:     name,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	output := stdout
	if stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += stderr
	}
	result.Output = tail(output, 8192)

	if err != nil || exitCode != 0 {
		result.Status = workspace.CheckFailed
		if err != nil {
			result.Output = err.Error()
		}
		return result
	}
	result.Status = workspace.CheckPassed
	return result
}

// tail keeps at most n trailing bytes of captured output.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
