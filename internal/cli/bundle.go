package cli

import (
	"fmt"

	"github.com/migforge/migforge/internal/config"
	"github.com/migforge/migforge/internal/workspace"
)

// configBundle is the config plus the workspace store most commands need.
type configBundle struct {
	cfg *config.Config
	ws  *workspace.Store
}

// openBundle loads the config from path (or the default search
// locations) and opens its workspace.
func openBundle(path string) (*configBundle, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	ws, err := workspace.Open(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	return &configBundle{cfg: cfg, ws: ws}, nil
}
