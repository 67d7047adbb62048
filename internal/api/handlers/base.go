// Package handlers implements the management API endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kuhlman-labs/migration-accelerator/internal/auth"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/notify"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
)

// maxBodyBytes bounds JSON request bodies; avatars are inline data URLs
const maxBodyBytes = 8 << 20

// TokenIssuer issues session tokens at login and renews them
type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
	RefreshToken(claims *auth.Claims) (string, error)
}

// LevelController adjusts the server log level at runtime
type LevelController interface {
	Level() string
	Configured() string
	SetLevel(name string) error
	Reset()
}

// EmailSender delivers notification emails
type EmailSender interface {
	Send(ctx context.Context, msg notify.Message) (notify.Result, error)
}

// Compile-time checks.
var (
	_ TokenIssuer = (*auth.JWTManager)(nil)
	_ EmailSender = (*notify.Sender)(nil)
)

// Handler contains all HTTP handlers
type Handler struct {
	store  storage.Store
	tokens TokenIssuer
	email  EmailSender
	levels LevelController
	logger *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(store storage.Store, tokens TokenIssuer, email EmailSender, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		tokens: tokens,
		email:  email,
		logger: logger,
	}
}

// SetLogLevels enables the log level settings endpoints
func (h *Handler) SetLogLevels(levels LevelController) {
	h.levels = levels
}

// Register adds every management API route to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/users/login", h.Login)
	mux.HandleFunc("POST /api/users/refresh", h.RefreshToken)
	mux.HandleFunc("GET /api/users", h.ListUsers)
	mux.HandleFunc("POST /api/users", h.CreateUser)
	mux.HandleFunc("PUT /api/users/{id}", h.UpdateUser)
	mux.HandleFunc("DELETE /api/users/{id}", h.DeleteUser)

	mux.HandleFunc("GET /api/projects", h.ListProjects)
	mux.HandleFunc("POST /api/projects", h.CreateProject)
	mux.HandleFunc("PUT /api/projects/{id}", h.UpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", h.DeleteProject)

	mux.HandleFunc("GET /api/migrations", h.ListMigrations)
	mux.HandleFunc("POST /api/migrations", h.SaveMigration)
	mux.HandleFunc("DELETE /api/migrations", h.ClearMigrations)
	mux.HandleFunc("GET /api/migrations/stats", h.MigrationStats)
	mux.HandleFunc("DELETE /api/migrations/{id}", h.DeleteMigration)

	mux.HandleFunc("POST /api/notifications/email", h.SendEmail)

	mux.HandleFunc("GET /api/settings/log-level", h.GetLogLevel)
	mux.HandleFunc("PUT /api/settings/log-level", h.SetLogLevel)
}

// sendJSON sends a JSON response with the specified status code.
func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// sendError logs server-side failures and writes err.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err APIError) {
	if err.StatusCode() >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error())
	}
	WriteError(w, err)
}

// requirePermission rejects a bearer token that lacks permission. Requests
// without a token reach this point only when anonymous access is enabled,
// and pass.
func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, permission string) bool {
	claims, ok := auth.GetClaimsFromContext(r.Context())
	if !ok || claims.HasPermission(permission) {
		return true
	}
	h.logger.Info("Permission denied",
		"user_id", claims.UserID,
		"permission", permission,
		"method", r.Method,
		"path", r.URL.Path)
	h.sendError(w, r, NewForbiddenError(permission))
	return false
}

// decodeJSON reads the request body into v. An empty body decodes to the
// zero value.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.sendError(w, r, ErrInvalidJSON.WithDetails(err.Error()))
		return false
	}
	return true
}

// pathID parses the {id} path segment
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, invalid APIError) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.sendError(w, r, invalid)
		return 0, false
	}
	return id, true
}

type successResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Health check failed", "error", err)
		h.sendJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  ErrServiceUnavailable.Message,
		})
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
