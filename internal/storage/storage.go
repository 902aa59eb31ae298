// Package storage selects a verification log backend from configuration.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/badgerdb"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/memory"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/sqldb"
)

// Open returns the backend named by cfg.Type.
func Open(cfg config.StorageConfig) (ports.LogStore, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "./data/verifier.db"
		}
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		return sqldb.NewSQLite(path)
	case "postgres":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("storage.database.dsn is required for postgres")
		}
		return sqldb.NewPostgres(cfg.Database.DSN)
	case "database":
		return sqldb.New(sqldb.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	case "badger":
		if cfg.Badger.Path != "" {
			if err := os.MkdirAll(cfg.Badger.Path, 0o755); err != nil {
				return nil, fmt.Errorf("create badger dir: %w", err)
			}
		}
		return badgerdb.Open(cfg.Badger.Path)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
