package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAPI_Login(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["password"] != "demo123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   "jwt-token",
			"user": map[string]any{
				"id": 1, "email": body["email"], "name": "Demo", "role": "Admin",
				"permissions": []string{"upload", "migrate"},
				"projects":    []map[string]any{{"id": 3, "name": "Alpha"}},
			},
		})
	})
	api := NewAPI(srv.URL, testLogger())

	resp, err := api.Login(context.Background(), "demo@iwconnect.com", "demo123")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "jwt-token", resp.Token)
	assert.Equal(t, int64(1), resp.User.ID)
	id, ok := resp.User.ProjectID("Alpha")
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	_, err = api.Login(context.Background(), "demo@iwconnect.com", "wrong")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.False(t, IsConnectivityError(err))
}

func TestAPI_ListMigrationsSendsFilters(t *testing.T) {
	var gotQuery map[string]string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		assert.Equal(t, "Bearer session", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"migrations": []map[string]any{{"executionId": "exec-1", "status": "in-progress"}},
		})
	})
	api := NewAPI(srv.URL, testLogger())
	api.SetToken("session")

	records, err := api.ListMigrations(context.Background(), MigrationQuery{
		User: "a@b.c", Project: "Alpha", Status: "failed", Search: "zip", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusInProgress, records[0].Status)
	assert.Equal(t, map[string]string{
		"user": "a@b.c", "project": "Alpha", "status": "failed", "search": "zip", "limit": "5",
	}, gotQuery)
}

func TestAPI_ErrorMessageFallsBackToStatusText(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "not json")
	})
	api := NewAPI(srv.URL, testLogger())

	err := api.DeleteMigration(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Not Found", apiErr.Message)
	assert.Equal(t, "/api/migrations/42", apiErr.URL)
}

func TestAPI_ClearAndStats(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/api/migrations":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": 7})
		case r.Method == http.MethodGet && r.URL.Path == "/api/migrations/stats":
			writeJSON(w, http.StatusOK, models.MigrationStats{Total: 3, Success: 2, Failed: 1})
		default:
			http.NotFound(w, r)
		}
	})
	api := NewAPI(srv.URL, testLogger())

	deleted, err := api.ClearMigrations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	stats, err := api.MigrationStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Success)
}

func TestAPI_UnreachableIsConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	api := NewAPI(url, testLogger())
	_, err := api.ListProjects(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.True(t, IsConnectivityError(err))
}

func TestAPI_CancelledIsNotConnectivityError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"projects": []any{}})
	})
	api := NewAPI(srv.URL, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := api.ListProjects(ctx)
	require.Error(t, err)
	assert.True(t, IsCancellation(err))
	assert.False(t, IsConnectivityError(err))
}

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unreachable", ErrUnreachable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"api error", &APIError{StatusCode: 500, Message: "boom"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}
