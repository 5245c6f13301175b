package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a run configuration from the given YAML file
// path, applies defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault searches standard locations for a config and loads the
// first one found. Search order: ./migforge.yaml, ./migration.yaml.
func LoadDefault() (*Config, error) {
	candidates := []string{"migforge.yaml", "migration.yaml"}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return nil, fmt.Errorf("no config found (searched: %v)", candidates)
}

// applyDefaults fills in values the file omitted.
func applyDefaults(cfg *Config) {
	if cfg.Workspace == "" && cfg.Project != "" {
		cfg.Workspace = filepath.Join(cfg.Project, ".migration-workspace")
	}
	if cfg.Loop.RetryThreshold <= 0 {
		cfg.Loop.RetryThreshold = 2
	}
	if cfg.Loop.StagnationWindow <= 0 {
		cfg.Loop.StagnationWindow = 2
	}
}
