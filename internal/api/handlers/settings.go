package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/logging"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

var _ LevelController = (*logging.Levels)(nil)

type logLevelResponse struct {
	Level      string `json:"level"`
	Configured string `json:"configured"`
}

type logLevelRequest struct {
	Level string `json:"level"`
}

// GetLogLevel handles GET /api/settings/log-level
func (h *Handler) GetLogLevel(w http.ResponseWriter, r *http.Request) {
	if h.levels == nil {
		h.sendError(w, r, ErrLogLevelUnavailable)
		return
	}
	h.sendJSON(w, http.StatusOK, logLevelResponse{Level: h.levels.Level(), Configured: h.levels.Configured()})
}

// SetLogLevel handles PUT /api/settings/log-level. An empty level or
// "default" restores the configured one.
func (h *Handler) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	if h.levels == nil {
		h.sendError(w, r, ErrLogLevelUnavailable)
		return
	}

	var req logLevelRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	previous := h.levels.Level()
	switch name := strings.TrimSpace(req.Level); {
	case name == "" || strings.EqualFold(name, "default"):
		h.levels.Reset()
	default:
		if err := h.levels.SetLevel(name); err != nil {
			if errors.Is(err, logging.ErrUnknownLevel) {
				h.sendError(w, r, NewValidationError("level", "Level must be one of debug, info, warn, error"))
				return
			}
			h.sendError(w, r, NewInternalError("Failed to set log level", err))
			return
		}
	}

	// Logged at warn so the change is visible at every level
	h.logger.Warn("Log level changed", "from", previous, "to", h.levels.Level())
	h.sendJSON(w, http.StatusOK, logLevelResponse{Level: h.levels.Level(), Configured: h.levels.Configured()})
}
