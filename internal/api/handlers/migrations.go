package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
)

const maxMigrationLimit = 1000

// ListMigrations handles GET /api/migrations. Optional query parameters:
// user, project, status, search and limit.
func (h *Handler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.MigrationFilter{
		UserEmail: strings.TrimSpace(query.Get("user")),
		Project:   strings.TrimSpace(query.Get("project")),
		Search:    strings.TrimSpace(query.Get("search")),
	}

	if raw := query.Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			h.sendError(w, r, NewValidationError("status", "Invalid status").WithDetails(err.Error()))
			return
		}
		filter.Status = status
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.sendError(w, r, NewValidationError("limit", "Invalid limit"))
			return
		}
		filter.Limit = min(limit, maxMigrationLimit)
	}

	migrations, err := h.store.ListMigrations(r.Context(), filter)
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to fetch migrations", err))
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"migrations": migrations})
}

// SaveMigration handles POST /api/migrations: an upsert keyed by executionId.
// Returns 201 when the migration is new and 200 when it was updated.
func (h *Handler) SaveMigration(w http.ResponseWriter, r *http.Request) {
	var in models.MigrationInput
	if !h.decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.ExecutionID) == "" || in.UserID == 0 {
		h.sendError(w, r, NewValidationError("", "Execution ID and user ID are required"))
		return
	}

	id, created, err := h.store.UpsertMigration(r.Context(), in)
	if err != nil {
		h.sendError(w, r, storeError(err, "Failed to create migration",
			ErrMigrationNotFound, NewConflictError("Migration already exists")))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.logger.Debug("Migration saved",
		"execution_id", in.ExecutionID,
		"status", in.Status,
		"created", created)
	h.sendJSON(w, status, successResponse{Success: true, ID: id})
}

// DeleteMigration handles DELETE /api/migrations/{id}
func (h *Handler) DeleteMigration(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, NewValidationError("id", "Invalid migration ID"))
	if !ok {
		return
	}

	if err := h.store.DeleteMigration(r.Context(), id); err != nil {
		h.sendError(w, r, storeError(err, "Failed to delete migration", ErrMigrationNotFound, ErrInternal))
		return
	}
	h.sendJSON(w, http.StatusOK, successResponse{Success: true})
}

// ClearMigrations handles DELETE /api/migrations
func (h *Handler) ClearMigrations(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	deleted, err := h.store.DeleteAllMigrations(r.Context())
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to delete migrations", err))
		return
	}

	h.logger.Info("Migration history cleared", "deleted", deleted)
	h.sendJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// MigrationStats handles GET /api/migrations/stats
func (h *Handler) MigrationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetMigrationStats(r.Context())
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to fetch migration stats", err))
		return
	}
	h.sendJSON(w, http.StatusOK, stats)
}
