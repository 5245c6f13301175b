package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for a runnable migration loop.
// All problems are reported at once rather than one per invocation.
func (c *Config) Validate() error {
	var problems []string

	if c.Project == "" {
		problems = append(problems, "project is required")
	}
	if c.Provider == "" {
		problems = append(problems, "provider is required")
	}
	if c.Analyzer.Command == "" {
		problems = append(problems, "analyzer.command is required")
	}
	if c.Fixer.Command == "" {
		problems = append(problems, "fixer.command is required")
	}
	if c.Verify.Build.Command == "" {
		problems = append(problems, "verify.build.command is required (only lint and test are optional)")
	}
	if c.Loop.MaxRounds == 0 {
		problems = append(problems, "loop.max_rounds must be set explicitly (use -1 for an unbounded run)")
	}
	if c.Loop.MaxRounds < -1 {
		problems = append(problems, fmt.Sprintf("loop.max_rounds %d is invalid", c.Loop.MaxRounds))
	}
	if c.Loop.StagnantRoundCap < 0 {
		problems = append(problems, fmt.Sprintf("loop.stagnant_round_cap %d is invalid", c.Loop.StagnantRoundCap))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
