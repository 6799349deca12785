// Package db opens GORM connections for the persistent stores. The driver
// switch keeps sqlite for local runs and tests while allowing postgres in
// deployment without touching any store code.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm opens a database handle for the given driver ("sqlite" or
// "postgres"). An empty driver defaults to sqlite; an empty sqlite dsn
// defaults to a local file.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "rosterflow.db"
		} else {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "sqlite":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	raw := strings.TrimSpace(dsn)
	lower := strings.ToLower(raw)
	if raw == "" || strings.EqualFold(raw, ":memory:") || strings.HasPrefix(lower, "file:") {
		return nil
	}
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	dir := filepath.Dir(raw)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite db dir: %w", err)
	}
	return nil
}
