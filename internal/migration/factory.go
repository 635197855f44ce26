package migration

import (
	"fmt"

	"github.com/dpalmqvist/lossless-context-management/config"
)

// NewMigratorFromConfig opens the database named in cfg.Database.Path and
// returns a migrator that owns that connection.
func NewMigratorFromConfig(cfg *config.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return NewMigratorFromPath(cfg.Database.Path)
}
