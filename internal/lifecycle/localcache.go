package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kuhlman-labs/migration-accelerator/internal/cache"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// LocalCache is the typed view of the session cache. Only the Controller
// writes the migration keys; everything else reads them.
type LocalCache struct {
	store cache.Store
	// mu serialises read-modify-write of the history list
	mu sync.Mutex
}

// NewLocalCache wraps store
func NewLocalCache(store cache.Store) *LocalCache {
	return &LocalCache{store: store}
}

// History returns the cached migration history, newest first. A corrupt
// entry reads as an empty history.
func (c *LocalCache) History(ctx context.Context) ([]models.MigrationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history(ctx)
}

func (c *LocalCache) history(ctx context.Context) ([]models.MigrationRecord, error) {
	var records []models.MigrationRecord
	_, err := c.store.Get(ctx, cache.KeyMigrationHistory, &records)
	if errors.Is(err, cache.ErrCorrupt) {
		return []models.MigrationRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}
	if records == nil {
		records = []models.MigrationRecord{}
	}
	return records, nil
}

// SaveHistory replaces the cached history
func (c *LocalCache) SaveHistory(ctx context.Context, records []models.MigrationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(ctx, cache.KeyMigrationHistory, records); err != nil {
		return fmt.Errorf("failed to save migration history: %w", err)
	}
	return nil
}

// ListRecords implements RecordStore over the cached history
func (c *LocalCache) ListRecords(ctx context.Context) ([]models.MigrationRecord, error) {
	return c.History(ctx)
}

// SaveRecord implements RecordStore: rec replaces the entry with the same
// execution id or is added at the front.
func (c *LocalCache) SaveRecord(ctx context.Context, rec models.MigrationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.history(ctx)
	if err != nil {
		return err
	}
	records = upsertRecord(records, rec)
	if err := c.store.Set(ctx, cache.KeyMigrationHistory, records); err != nil {
		return fmt.Errorf("failed to save migration history: %w", err)
	}
	return nil
}

// Current returns the current migration slot, or nil when it is empty or
// unreadable.
func (c *LocalCache) Current(ctx context.Context) (*models.MigrationRecord, error) {
	var rec models.MigrationRecord
	found, err := c.store.Get(ctx, cache.KeyCurrentMigration, &rec)
	if errors.Is(err, cache.ErrCorrupt) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current migration: %w", err)
	}
	if !found || rec.ExecutionID == "" {
		return nil, nil
	}
	return &rec, nil
}

// SetCurrent fills the current migration slot
func (c *LocalCache) SetCurrent(ctx context.Context, rec models.MigrationRecord) error {
	if err := c.store.Set(ctx, cache.KeyCurrentMigration, rec); err != nil {
		return fmt.Errorf("failed to save current migration: %w", err)
	}
	return nil
}

// ClearCurrent empties the current migration slot
func (c *LocalCache) ClearCurrent(ctx context.Context) error {
	if err := c.store.Delete(ctx, cache.KeyCurrentMigration); err != nil {
		return fmt.Errorf("failed to clear current migration: %w", err)
	}
	return nil
}

// Preferences returns the saved preferences; absent flags read as enabled
func (c *LocalCache) Preferences(ctx context.Context) (models.Preferences, error) {
	var prefs models.Preferences
	_, err := c.store.Get(ctx, cache.KeyUserPreferences, &prefs)
	if errors.Is(err, cache.ErrCorrupt) {
		return models.Preferences{}, nil
	}
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to read preferences: %w", err)
	}
	return prefs, nil
}

// SetPreferences saves prefs
func (c *LocalCache) SetPreferences(ctx context.Context, prefs models.Preferences) error {
	if err := c.store.Set(ctx, cache.KeyUserPreferences, prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// Session returns the saved login, if any
func (c *LocalCache) Session(ctx context.Context) (*models.SessionUser, string, error) {
	var user models.SessionUser
	found, err := c.store.Get(ctx, cache.KeyUser, &user)
	if err != nil && !errors.Is(err, cache.ErrCorrupt) {
		return nil, "", fmt.Errorf("failed to read session user: %w", err)
	}
	if !found || err != nil || user.Email == "" {
		return nil, "", nil
	}

	var token string
	if _, err := c.store.Get(ctx, cache.KeyAuthToken, &token); err != nil && !errors.Is(err, cache.ErrCorrupt) {
		return nil, "", fmt.Errorf("failed to read auth token: %w", err)
	}
	return &user, token, nil
}

// SetSession saves the login returned by the management API
func (c *LocalCache) SetSession(ctx context.Context, user models.SessionUser, token string) error {
	if err := c.store.Set(ctx, cache.KeyUser, user); err != nil {
		return fmt.Errorf("failed to save session user: %w", err)
	}
	if err := c.store.Set(ctx, cache.KeyAuthToken, token); err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// ClearSession forgets the login. History and preferences are kept.
func (c *LocalCache) ClearSession(ctx context.Context) error {
	for _, key := range []string{cache.KeyUser, cache.KeyAuthToken} {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	return nil
}
