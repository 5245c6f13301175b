// Package tools drives the external collaborators (analyzer, fixer,
// verifier) as black-box commands. All execution goes through the
// CommandRunner abstraction so the loop is testable without shelling out.
package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// runWithTimeout executes a command under a timeout, normalizing the
// timeout case into an error rather than a partial result.
func runWithTimeout(ctx context.Context, runner CommandRunner, dir, command string, timeout time.Duration) (string, string, int, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := runner.Run(ctx, dir, command)
	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, -1, fmt.Errorf("timeout after %s", timeout)
	}
	return stdout, stderr, exitCode, err
}

// expand substitutes {{name}} placeholders in a command template.
func expand(template string, vars map[string]string) string {
	out := template
	for name, val := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", val)
	}
	return out
}
