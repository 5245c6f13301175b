package config

import "time"

// Config is the top-level run configuration parsed from migration YAML.
type Config struct {
	Project   string   `yaml:"project"`
	Workspace string   `yaml:"workspace"`
	Provider  string   `yaml:"provider"`
	Targets   []string `yaml:"targets"`

	Analyzer Tool   `yaml:"analyzer"`
	Fixer    Tool   `yaml:"fixer"`
	Verify   Verify `yaml:"verify"`
	Loop     Loop   `yaml:"loop"`

	Guidance string `yaml:"guidance"` // optional guidance file path
	EventsDB string `yaml:"events_db"` // optional; default <workspace>/migforge.db
}

// Tool is one external collaborator invocation.
type Tool struct {
	Command string `yaml:"command"`
	Timeout string `yaml:"timeout"`
}

// TimeoutOr parses the tool's timeout, falling back to def.
func (t Tool) TimeoutOr(def time.Duration) time.Duration {
	if t.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Verify configures the build, lint and test checks. Lint and test are
// optional; build is required for a meaningful validate phase.
type Verify struct {
	Build Tool `yaml:"build"`
	Lint  Tool `yaml:"lint"`
	Test  Tool `yaml:"test"`
}

// Loop holds the round budgets and thresholds.
type Loop struct {
	// MaxRounds is the hard round ceiling. It must be set explicitly:
	// a positive value bounds the run, -1 opts into an unbounded run,
	// and zero fails validation.
	MaxRounds        int `yaml:"max_rounds"`
	RetryThreshold   int `yaml:"retry_threshold"`
	StagnationWindow int `yaml:"stagnation_window"`
	StagnantRoundCap int `yaml:"stagnant_round_cap"`
}
