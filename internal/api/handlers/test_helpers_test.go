package handlers

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
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/notify"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent      []notify.Message
	delivered bool
	err       error
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) (notify.Result, error) {
	if f.err != nil {
		return notify.Result{}, f.err
	}
	f.sent = append(f.sent, msg)
	return notify.Result{Delivered: f.delivered}, nil
}

type testEnv struct {
	db      *storage.Database
	handler *Handler
	mux     *http.ServeMux
	authed  http.Handler
	sender  *fakeSender
	jwt     *auth.JWTManager
	levels  *logging.Levels
}

// setupTestEnv creates a handler over a seeded in-memory database
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.NewDatabase(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	seed, err := storage.DefaultSeed()
	require.NoError(t, err)
	_, err = db.Seed(context.Background(), seed)
	require.NoError(t, err)

	jwtManager, err := auth.NewJWTManager("test-secret", 24)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sender := &fakeSender{}
	handler := NewHandler(db, jwtManager, sender, logger)
	_, levels := logging.NewLogger(config.LoggingConfig{Level: "info"})
	handler.SetLogLevels(levels)
	mux := http.NewServeMux()
	handler.Register(mux)
	authed := auth.NewMiddleware(jwtManager, logger, false).Authenticate(mux)

	return &testEnv{db: db, handler: handler, mux: mux, authed: authed, sender: sender, jwt: jwtManager, levels: levels}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, newJSONRequest(t, method, target, body))
	return w
}

// doAs sends the request with a session token of the seed user email
func (e *testEnv) doAs(t *testing.T, email, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token, err := e.jwt.GenerateToken(e.user(t, email))
	require.NoError(t, err)

	req := newJSONRequest(t, method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.authed.ServeHTTP(w, req)
	return w
}

func newJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) user(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := e.db.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, user, "seed user %s", email)
	return user
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[APIError](t, w).Message
}
