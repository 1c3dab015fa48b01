package persistence

import (
	"fmt"
	"indodax-monitor-bot/internal/models"
	"os"
	"path/filepath"
)

// Open returns the repository selected by the storage config.
func Open(cfg models.StorageConfig) (Repository, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileRepository(cfg.Path)
	case "badger":
		return NewBadgerRepository(cfg.Path)
	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create storage dir: %w", err)
			}
		}
		return NewSQLiteRepository(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
