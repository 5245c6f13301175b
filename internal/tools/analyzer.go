package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrAnalyzerUnavailable indicates the external analyzer could not run.
// This is fatal for the run: without a findings document there is no
// basis for any further decision.
var ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

// Analyzer invokes the static-analysis collaborator and returns its raw
// findings document.
type Analyzer struct {
	runner   CommandRunner
	command  string // template with {{project}}, {{output}}, {{provider}}, {{targets}}
	project  string
	provider string
	targets  []string
	timeout  time.Duration
}

// AnalyzerOpts configures an Analyzer.
type AnalyzerOpts struct {
	Command  string
	Project  string
	Provider string
	Targets  []string
	Timeout  time.Duration
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(runner CommandRunner, opts AnalyzerOpts) *Analyzer {
	return &Analyzer{
		runner:   runner,
		command:  opts.Command,
		project:  opts.Project,
		provider: opts.Provider,
		targets:  opts.Targets,
		timeout:  opts.Timeout,
	}
}

// Analyze runs the analyzer with outputPath as its output destination
// and returns the raw findings document written there. Any failure to
// run the tool or to produce output wraps ErrAnalyzerUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, outputPath string) ([]byte, error) {
	command := expand(a.command, map[string]string{
		"project":  a.project,
		"output":   outputPath,
		"provider": a.provider,
		"targets":  strings.Join(a.targets, ","),
	})

	_, stderr, exitCode, err := runWithTimeout(ctx, a.runner, a.project, command, a.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: exit code %d: %s", ErrAnalyzerUnavailable, exitCode, firstLine(stderr))
	}

	raw, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: no findings document at %s: %v", ErrAnalyzerUnavailable, outputPath, err)
	}
	return raw, nil
}

// firstLine trims command output down to its first non-empty line.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "(no output)"
}
