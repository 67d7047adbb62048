package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	var got sample
	found, err := store.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := sample{Name: "history", Count: 2, Tags: []string{"a", "b"}}
	require.NoError(t, store.Set(ctx, "k", want))

	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	// Overwrite
	want.Count = 3
	require.NoError(t, store.Set(ctx, "k", want))
	got = sample{}
	_, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)

	// Decoding into an incompatible type reports corruption
	var wrong []int
	_, err = store.Get(ctx, "k", &wrong)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}

	require.NoError(t, store.Delete(ctx, "k"))
	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestSQLStore(t *testing.T) {
	store, err := NewSQLStore(filepath.Join(t.TempDir(), "nested", "session.db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	store, err := NewSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyAuthToken, "token-123"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	var token string
	found, err := reopened.Get(ctx, KeyAuthToken, &token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "token-123", token)
}

func TestNewSQLStore_EmptyPath(t *testing.T) {
	_, err := NewSQLStore("")
	assert.Error(t, err)
}

// TestRedisStore_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisStore_Integration(t *testing.T) {
	store := NewRedisStore("localhost:6379", 0, "accelerator-test:")
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	exerciseStore(t, store)
}

func TestOpen(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		store, err := Open(config.CacheConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &SQLStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		store, err := Open(config.CacheConfig{Backend: "redis", RedisAddr: "localhost:6379", KeyPrefix: "x:"})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &RedisStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(config.CacheConfig{Backend: "memcached"})
		assert.Error(t, err)
	})
}
