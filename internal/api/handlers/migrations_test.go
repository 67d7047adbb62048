package handlers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type migrationsResponse struct {
	Migrations []models.MigrationRecord `json:"migrations"`
}

func TestSaveMigration_UpsertByExecutionID(t *testing.T) {
	env := setupTestEnv(t)
	user := env.user(t, "user@iwconnect.com")
	alphaID := user.Projects[0].ID
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	w := env.do(t, http.MethodPost, "/api/migrations", map[string]any{
		"executionId": "exec-42",
		"userId":      user.ID,
		"projectId":   alphaID,
		"fileName":    "orders.zip",
		"status":      "in-progress",
		"startTime":   start.UnixMilli(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	firstID := decodeBody[successResponse](t, w).ID

	w = env.do(t, http.MethodPost, "/api/migrations", map[string]any{
		"executionId": "exec-42",
		"userId":      user.ID,
		"status":      "success",
		"endTime":     start.Add(95 * time.Second).Format(time.RFC3339),
		"duration":    95_400,
		"resultData":  map[string]any{"message": "Migration completed successfully", "pipelines": 4},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, firstID, decodeBody[successResponse](t, w).ID)

	w = env.do(t, http.MethodGet, "/api/migrations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decodeBody[migrationsResponse](t, w).Migrations
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, models.StatusSuccess, rec.Status)
	assert.Equal(t, "Project Alpha", rec.Project)
	assert.Equal(t, start.UnixMilli(), rec.StartTime)
	require.NotNil(t, rec.Duration)
	assert.Equal(t, int64(95_000), *rec.Duration, "duration is stored in whole seconds")
	assert.Equal(t, "Migration completed successfully", rec.Message)
	assert.Equal(t, "user@iwconnect.com", rec.User)
}

func TestSaveMigration_Validation(t *testing.T) {
	env := setupTestEnv(t)
	user := env.user(t, "user@iwconnect.com")

	tests := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"missing execution id", map[string]any{"userId": user.ID}, "Execution ID and user ID are required"},
		{"missing user id", map[string]any{"executionId": "x"}, "Execution ID and user ID are required"},
		{"unknown status", map[string]any{"executionId": "x", "userId": user.ID, "status": "exploded"}, ""},
		{"unknown user", map[string]any{"executionId": "x", "userId": 9999}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/migrations", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			if tt.message != "" {
				assert.Equal(t, tt.message, errorMessage(t, w))
			}
		})
	}
}

func TestListMigrations_Filters(t *testing.T) {
	env := setupTestEnv(t)
	user := env.user(t, "user@iwconnect.com")
	admin := env.user(t, "admin@iwconnect.com")

	save := func(execID string, owner *models.User, file, status string) {
		w := env.do(t, http.MethodPost, "/api/migrations", map[string]any{
			"executionId": execID,
			"userId":      owner.ID,
			"fileName":    file,
			"status":      status,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	save("a", user, "Orders.zip", "success")
	save("b", user, "billing.zip", "failed")
	save("c", admin, "orders-v2.zip", "in_progress")

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"a", "b", "c"}},
		{"?user=USER@iwconnect.com", []string{"a", "b"}},
		{"?status=failed", []string{"b"}},
		{"?status=in-progress", []string{"c"}},
		{"?search=orders", []string{"a", "c"}},
		{"?project=Unassigned", []string{"a", "b", "c"}},
		{"?project=Project%20Alpha", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/migrations"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var got []string
			for _, rec := range decodeBody[migrationsResponse](t, w).Migrations {
				got = append(got, rec.ExecutionID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}

	w := env.do(t, http.MethodGet, "/api/migrations?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[migrationsResponse](t, w).Migrations, 1)

	w = env.do(t, http.MethodGet, "/api/migrations?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/migrations?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAndClearMigrations(t *testing.T) {
	env := setupTestEnv(t)
	user := env.user(t, "user@iwconnect.com")

	var ids []int64
	for _, execID := range []string{"one", "two", "three"} {
		w := env.do(t, http.MethodPost, "/api/migrations", map[string]any{"executionId": execID, "userId": user.ID})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decodeBody[successResponse](t, w).ID)
	}

	w := env.do(t, http.MethodDelete, "/api/migrations/"+strconv.FormatInt(ids[0], 10), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/migrations/"+strconv.FormatInt(ids[0], 10), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/migrations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid migration ID", errorMessage(t, w))

	w = env.do(t, http.MethodDelete, "/api/migrations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[struct {
		Success bool  `json:"success"`
		Deleted int64 `json:"deleted"`
	}](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(2), resp.Deleted)
}

func TestMigrationStats(t *testing.T) {
	env := setupTestEnv(t)
	user := env.user(t, "user@iwconnect.com")

	for i, status := range []string{"success", "success", "failed", "cancelled", "in-progress", ""} {
		w := env.do(t, http.MethodPost, "/api/migrations", map[string]any{
			"executionId": "exec-" + strconv.Itoa(i),
			"userId":      user.ID,
			"status":      status,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/migrations/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody[models.MigrationStats](t, w)
	assert.Equal(t, models.MigrationStats{
		Total:      6,
		Success:    2,
		Failed:     1,
		Cancelled:  1,
		InProgress: 1,
		Pending:    1,
	}, stats)
}
