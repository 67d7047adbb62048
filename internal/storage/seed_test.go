package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeed(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)

	assert.Len(t, seed.Projects, 3)
	require.Len(t, seed.Users, 4)
	assert.Equal(t, "demo@iwconnect.com", seed.Users[0].Email)
	assert.Equal(t, models.RoleViewer, seed.Users[3].Role)
}

func TestSeed_EmptyDatabase(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed, err := DefaultSeed()
	require.NoError(t, err)

	seeded, err := db.Seed(ctx, seed)
	require.NoError(t, err)
	assert.True(t, seeded)

	admin, err := db.GetUserByEmail(ctx, "admin@iwconnect.com")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, "admin123", admin.Password)
	assert.Equal(t, []string{"Project Alpha", "Project Beta", "Project Gamma"}, admin.ProjectNames())
	assert.True(t, admin.HasPermission(models.PermissionCancel))

	viewer, err := db.GetUserByEmail(ctx, "viewer@iwconnect.com")
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermissionViewHistory}, viewer.Permissions)
	assert.Equal(t, []string{"Project Beta"}, viewer.ProjectNames())

	// A second run must leave existing data alone
	seeded, err = db.Seed(ctx, seed)
	require.NoError(t, err)
	assert.False(t, seeded)

	count, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestSeed_SkipsPopulatedUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "existing@example.com")

	seed, err := DefaultSeed()
	require.NoError(t, err)

	seeded, err := db.Seed(ctx, seed)
	require.NoError(t, err)
	assert.True(t, seeded, "projects are still seeded")

	count, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	projects, err := db.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 3)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(dir, "seed.yaml")
		content := "projects:\n  - name: Solo\nusers:\n  - email: a@b.c\n    password: p\n    name: A\n    projects: [Solo]\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		seed, err := LoadSeed(path)
		require.NoError(t, err)
		require.Len(t, seed.Users, 1)
		assert.Equal(t, []string{"Solo"}, seed.Users[0].Projects)
	})

	t.Run("empty path uses default", func(t *testing.T) {
		seed, err := LoadSeed("")
		require.NoError(t, err)
		assert.Len(t, seed.Users, 4)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSeed(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown role", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		content := "users:\n  - email: a@b.c\n    password: p\n    name: A\n    role: Root\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		_, err := LoadSeed(path)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}
