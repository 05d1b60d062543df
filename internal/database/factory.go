package database

import (
	"fmt"
	"os"
	"path/filepath"

	"shelf-go/internal/config"
)

// DatabaseFile is the SQLite file name inside the configured data directory.
const DatabaseFile = "library.db"

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type.
// publisher may be nil.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, publisher Publisher) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFile), publisher)
	case "memory":
		return NewSQLiteDatabase(":memory:", publisher)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
