package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/auth"
	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/kuhlman-labs/migration-accelerator/internal/logging"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, requireToken bool, opts ...Option) (http.Handler, *auth.JWTManager) {
	t.Helper()

	db, err := storage.NewDatabase(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	seed, err := storage.DefaultSeed()
	require.NoError(t, err)
	_, err = db.Seed(context.Background(), seed)
	require.NoError(t, err)

	jwtManager, err := auth.NewJWTManager("router-secret", 1)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: "*"},
		Relay: config.RelayConfig{
			URL:            "http://127.0.0.1:0/unused",
			TimeoutSeconds: 5,
			MaxUploadBytes: 1 << 20,
		},
		Auth:          config.AuthConfig{RequireToken: requireToken},
		Notifications: config.NotificationsConfig{ServiceType: "brevo"},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer(cfg, db, jwtManager, logger, opts...).Router(), jwtManager
}

func serve(h http.Handler, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, true)

	w := serve(router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_RequireToken(t *testing.T) {
	router, jwtManager := newTestRouter(t, true)

	w := serve(router, http.MethodGet, "/api/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Authentication required"}`, w.Body.String())

	w = serve(router, http.MethodPost, "/api/users/login", map[string]string{
		"email":    "user@iwconnect.com",
		"password": "user123",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	_, err := jwtManager.ValidateToken(login.Token)
	require.NoError(t, err)

	w = serve(router, http.MethodGet, "/api/projects", nil, http.Header{
		"Authorization": {"Bearer " + login.Token},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/api/projects", nil, http.Header{
		"Authorization": {"Bearer not-a-token"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AnonymousAccess(t *testing.T) {
	router, _ := newTestRouter(t, false)

	w := serve(router, http.MethodGet, "/api/users", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, true)

	w := serve(router, http.MethodOptions, "/api/migrations", nil, http.Header{
		"Origin": {"https://accelerator.example.com"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestRouter_Relay(t *testing.T) {
	router, _ := newTestRouter(t, true)

	t.Run("usage hint", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/upload", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Contains(t, w.Body.String(), "only accepts POST requests")
	})

	t.Run("preflight", func(t *testing.T) {
		w := serve(router, http.MethodOptions, "/upload", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("no api token", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/upload", map[string]string{"file": "x"}, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "API token not configured")
	})
}

func TestRouter_LogLevelAndRefresh(t *testing.T) {
	_, levels := logging.NewLogger(config.LoggingConfig{Level: "warn"})
	router, _ := newTestRouter(t, true, WithLogLevels(levels))

	w := serve(router, http.MethodPost, "/api/users/login",
		map[string]string{"email": "admin@iwconnect.com", "password": "admin123"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	bearer := http.Header{"Authorization": {"Bearer " + login.Token}}

	w = serve(router, http.MethodPut, "/api/settings/log-level", map[string]string{"level": "debug"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(router, http.MethodPut, "/api/settings/log-level", map[string]string{"level": "debug"}, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"level":"debug","configured":"warn"}`, w.Body.String())
	assert.Equal(t, "debug", levels.Level())

	w = serve(router, http.MethodPost, "/api/users/refresh", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.NotEmpty(t, refreshed.Token)
}
