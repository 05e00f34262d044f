package database

import (
	"fmt"
	"os"
	"path/filepath"

	"retain/internal/archive"
	"retain/internal/config"
)

// NewRepositoryFromConfig creates a SQLiteRepository based on the database
// config type. The checksum queue and usage oracle share its connection.
func NewRepositoryFromConfig(cfg config.DatabaseConfig, clock archive.Clock) (*SQLiteRepository, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteRepository(filepath.Join(cfg.DataDir, "retain.db"), clock)
	case "memory":
		return NewSQLiteRepository(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
