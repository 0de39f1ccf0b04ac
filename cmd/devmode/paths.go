package main

import (
	"fmt"
	"path/filepath"

	"github.com/benaskins/devmode/internal/config"
)

// loadProject resolves the project root and reads its .devmode.yaml.
func loadProject() (string, *config.Config, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving project dir: %w", err)
	}
	cfg, err := config.Load(config.DefaultPath(root))
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// socketPath returns the control socket of the session for root.
func socketPath(root string, cfg *config.Config) string {
	return config.Resolve(root, cfg.APISocket)
}
