package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/convoguard/convoguard/internal/config"
	"github.com/convoguard/convoguard/internal/db"
)

// loadConfig loads and validates the process configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDatabase opens the convoguard database under the configured data
// directory.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	path := filepath.Join(cfg.DataDir, "convoguard.db")
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}
