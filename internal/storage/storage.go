// Package storage selects the version storage backend from configuration.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/memory"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/sqldb"
)

// Open returns the VersionStorage described by cfg.
func Open(cfg config.StorageConfig) (ports.VersionStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return memory.New(memory.WithQuota(int64(cfg.MemoryQuotaBytes))), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = config.DefaultSQLitePath
		}
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		return sqldb.NewSQLite(path)
	case "postgres", "database":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("storage %s: database dsn is required", cfg.Type)
		}
		driver := cfg.Database.Driver
		if driver == "" {
			driver = "postgres"
		}
		return sqldb.New(sqldb.Config{Driver: driver, DSN: cfg.Database.DSN})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// ensureDir creates the parent directory of a sqlite file path.
func ensureDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	return nil
}
