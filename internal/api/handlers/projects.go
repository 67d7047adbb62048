package handlers

import (
	"net/http"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

var errProjectNameRequired = NewValidationError("name", "Project name is required")

// ListProjects handles GET /api/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to fetch projects", err))
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// CreateProject handles POST /api/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	var req projectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		h.sendError(w, r, errProjectNameRequired)
		return
	}

	project := &models.Project{Name: *req.Name}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if err := h.store.CreateProject(r.Context(), project); err != nil {
		h.sendError(w, r, storeError(err, "Failed to create project",
			ErrProjectNotFound, NewConflictError("Project with this name already exists")))
		return
	}

	h.logger.Info("Project created", "project_id", project.ID, "name", project.Name)
	h.sendJSON(w, http.StatusCreated, successResponse{Success: true, ID: project.ID})
}

// UpdateProject handles PUT /api/projects/{id}
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	id, ok := h.pathID(w, r, NewValidationError("id", "Invalid project ID"))
	if !ok {
		return
	}

	var req projectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		h.sendError(w, r, errProjectNameRequired)
		return
	}

	project, err := h.store.UpdateProject(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.sendError(w, r, storeError(err, "Failed to update project",
			ErrProjectNotFound, NewConflictError("Project with this name already exists")))
		return
	}

	h.logger.Info("Project updated", "project_id", id, "name", project.Name)
	h.sendJSON(w, http.StatusOK, map[string]any{"success": true, "project": project})
}

// DeleteProject handles DELETE /api/projects/{id}. Users lose access to it
// and its migrations become unassigned.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	id, ok := h.pathID(w, r, NewValidationError("id", "Invalid project ID"))
	if !ok {
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		h.sendError(w, r, storeError(err, "Failed to delete project", ErrProjectNotFound, ErrInternal))
		return
	}

	h.logger.Info("Project deleted", "project_id", id)
	h.sendJSON(w, http.StatusOK, successResponse{Success: true})
}
