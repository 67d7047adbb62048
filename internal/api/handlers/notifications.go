package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/notify"
)

type emailRequest struct {
	To            string          `json:"to"`
	Subject       string          `json:"subject"`
	Body          string          `json:"body"`
	MigrationData json.RawMessage `json:"migrationData"`
}

// SendEmail handles POST /api/notifications/email
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Subject) == "" || req.Body == "" {
		h.sendError(w, r, NewValidationError("", "Missing required fields: to, subject, body"))
		return
	}

	result, err := h.email.Send(r.Context(), notify.Message{
		To:            req.To,
		Subject:       req.Subject,
		Body:          req.Body,
		MigrationData: req.MigrationData,
	})
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to send email", err))
		return
	}

	message := "Email sent successfully"
	if !result.Delivered {
		message = "Email logged (no email service configured)"
	}
	h.sendJSON(w, http.StatusOK, successResponse{Success: true, Message: message})
}
