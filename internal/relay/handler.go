package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const tokenMissingMessage = "SNAPLOGIC_API_TOKEN is not set in the server configuration"

// Handler serves the upload relay endpoints
type Handler struct {
	forwarder *Forwarder
	maxBytes  int64
	logger    *slog.Logger
}

// NewHandler creates the relay HTTP handler. maxBytes <= 0 disables the size limit.
func NewHandler(forwarder *Forwarder, maxBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{forwarder: forwarder, maxBytes: maxBytes, logger: logger}
}

// Register adds the relay routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload", h.Upload)
	mux.HandleFunc("GET /upload", h.UsageHint)
	mux.HandleFunc("OPTIONS /upload", h.Preflight)
	mux.HandleFunc("GET /upload/status/{id}", h.Status)
	mux.HandleFunc("GET /upload/results/{id}", h.Results)
	mux.HandleFunc("GET /upload/report/{id}", h.Report)
}

// Upload handles POST /upload
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBytes > 0 {
		if r.ContentLength > h.maxBytes {
			h.sendJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":   "Upload too large",
				"message": "The uploaded package exceeds the configured size limit",
			})
			return
		}
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	resp, err := h.forwarder.Upload(r.Context(), body, r.Header.Get("Content-Type"), r.ContentLength)
	if err != nil {
		h.sendUpstreamError(w, r, err)
		return
	}

	h.logger.Info("Upload relayed",
		"status", resp.StatusCode,
		"content_length", r.ContentLength,
		"response_bytes", len(resp.Body))
	h.passthrough(w, resp)
}

// UsageHint handles GET /upload
func (h *Handler) UsageHint(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	h.sendJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"message": "This endpoint only accepts POST requests",
		"usage":   "Send a POST request with your file data to /upload",
	})
}

// Preflight handles OPTIONS /upload
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	headers.Set("Access-Control-Allow-Origin", "*")
	headers.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	headers.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	headers.Set("Access-Control-Max-Age", "3600")
	w.WriteHeader(http.StatusOK)
}

// Status handles GET /upload/status/{id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.forwarder.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendUpstreamError(w, r, err)
		return
	}
	h.passthrough(w, resp)
}

// Results handles GET /upload/results/{id}
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	resp, err := h.forwarder.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendUpstreamError(w, r, err)
		return
	}
	h.passthrough(w, resp)
}

// Report handles GET /upload/report/{id}?format=json|csv
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "csv" {
		h.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "format must be json or csv"})
		return
	}

	resp, err := h.forwarder.Report(r.Context(), r.PathValue("id"), format)
	if err != nil {
		h.sendUpstreamError(w, r, err)
		return
	}

	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (h *Handler) passthrough(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.Debug("Failed to write relay response", "error", err)
	}
}

func (h *Handler) sendUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrTokenMissing) {
		h.logger.Error("Relay called without an API token configured", "path", r.URL.Path)
		h.sendJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "API token not configured",
			"message": tokenMissingMessage,
		})
		return
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.sendJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "Upload too large",
			"message": "The uploaded package exceeds the configured size limit",
		})
		return
	}

	h.logger.Error("SnapLogic request failed", "path", r.URL.Path, "error", err)
	payload := map[string]string{
		"error":   "SnapLogic request failed",
		"message": err.Error(),
	}
	if IsTimeout(err) {
		payload["details"] = "Request timeout (exceeded 5 minutes)"
	}
	h.sendJSON(w, http.StatusInternalServerError, payload)
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}
