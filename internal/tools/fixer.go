package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/migforge/migforge/internal/planner"
)

// FixOutcome is the fixer collaborator's report for one group: success
// or failure plus a free-text description of the approach taken. The
// description is stored in the escalation ledger on failure.
type FixOutcome struct {
	Success  bool   `json:"success"`
	Approach string `json:"approach"`
}

// Fixer hands fix groups to the external code-rewriting collaborator.
type Fixer struct {
	runner  CommandRunner
	command string // template with {{project}} and {{group}}
	project string
	timeout time.Duration
}

// FixerOpts configures a Fixer.
type FixerOpts struct {
	Command string
	Project string
	Timeout time.Duration
}

// NewFixer creates a Fixer.
func NewFixer(runner CommandRunner, opts FixerOpts) *Fixer {
	return &Fixer{
		runner:  runner,
		command: opts.Command,
		project: opts.Project,
		timeout: opts.Timeout,
	}
}

// Apply invokes the fixer on one group. The group's issues and
// dependency note are handed over as a JSON file whose path replaces
// the {{group}} placeholder. Fix failures are an expected outcome, not
// an error: the returned error is reserved for workspace-level problems
// like being unable to write the group file.
func (f *Fixer) Apply(ctx context.Context, group *planner.FixGroup) (*FixOutcome, error) {
	groupFile, err := writeGroupFile(group)
	if err != nil {
		return nil, err
	}
	defer os.Remove(groupFile)

	command := expand(f.command, map[string]string{
		"project": f.project,
		"group":   groupFile,
	})

	stdout, stderr, exitCode, err := runWithTimeout(ctx, f.runner, f.project, command, f.timeout)
	if err != nil {
		return &FixOutcome{Success: false, Approach: fmt.Sprintf("fixer did not run: %v", err)}, nil
	}

	approach := strings.TrimSpace(stdout)
	if approach == "" {
		approach = firstLine(stderr)
	}
	if exitCode != 0 {
		return &FixOutcome{Success: false, Approach: approach}, nil
	}
	return &FixOutcome{Success: true, Approach: approach}, nil
}

// writeGroupFile serializes a fix group for the collaborator.
func writeGroupFile(group *planner.FixGroup) (string, error) {
	data, err := json.MarshalIndent(group, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal fix group: %w", err)
	}
	tmp, err := os.CreateTemp("", "migforge-group-*.json")
	if err != nil {
		return "", fmt.Errorf("create group file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write group file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close group file: %w", err)
	}
	return tmp.Name(), nil
}
