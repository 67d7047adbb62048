// Package cache persists the client session: the working copy of the
// migration history, the current migration slot, preferences and the login.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
)

// Keys of the persisted session state.
const (
	KeyMigrationHistory = "migrationHistory"
	KeyCurrentMigration = "currentMigration"
	KeyUserPreferences  = "userPreferences"
	KeyAuthToken        = "authToken"
	KeyUser             = "user"
)

// ErrCorrupt is returned by Get when a stored value cannot be decoded into dst.
var ErrCorrupt = errors.New("cached value is corrupt")

// Store is a JSON key-value store. Get reports false when the key is absent.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend selected by cfg.Backend
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLStore(cfg.Path)
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
