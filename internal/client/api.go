// Package client talks to the accelerator server: the management API for
// users, projects and migration history, and the upload relay.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// API is a client for the management API
type API struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// NewAPI creates a management API client for baseURL
func NewAPI(baseURL string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SetToken sets the session token sent as a bearer credential
func (a *API) SetToken(token string) {
	a.token = token
}

// LoginResponse is the answer to a successful login
type LoginResponse struct {
	Success bool               `json:"success"`
	User    models.SessionUser `json:"user"`
	Token   string             `json:"token"`
}

// Login authenticates and returns the session profile
func (a *API) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/users/login", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MigrationQuery narrows ListMigrations
type MigrationQuery struct {
	User    string
	Project string
	Status  string
	Search  string
	Limit   int
}

func (q MigrationQuery) values() url.Values {
	v := url.Values{}
	if q.User != "" {
		v.Set("user", q.User)
	}
	if q.Project != "" {
		v.Set("project", q.Project)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ListMigrations returns stored migrations, newest first
func (a *API) ListMigrations(ctx context.Context, query MigrationQuery) ([]models.MigrationRecord, error) {
	var resp struct {
		Migrations []models.MigrationRecord `json:"migrations"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/migrations", query.values(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Migrations, nil
}

// SaveMigration upserts a migration by execution id
func (a *API) SaveMigration(ctx context.Context, in models.MigrationInput) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/migrations", nil, in, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteMigration removes one stored migration
func (a *API) DeleteMigration(ctx context.Context, id int64) error {
	return a.do(ctx, http.MethodDelete, "/api/migrations/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// ClearMigrations removes every stored migration and returns how many were deleted
func (a *API) ClearMigrations(ctx context.Context) (int64, error) {
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := a.do(ctx, http.MethodDelete, "/api/migrations", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// MigrationStats returns the dashboard counters
func (a *API) MigrationStats(ctx context.Context) (*models.MigrationStats, error) {
	var stats models.MigrationStats
	if err := a.do(ctx, http.MethodGet, "/api/migrations/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListProjects returns every project
func (a *API) ListProjects(ctx context.Context) ([]models.Project, error) {
	var resp struct {
		Projects []models.Project `json:"projects"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/projects", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// EmailRequest is the body of the email notification endpoint
type EmailRequest struct {
	To            string                  `json:"to"`
	Subject       string                  `json:"subject"`
	Body          string                  `json:"body"`
	MigrationData *models.MigrationRecord `json:"migrationData,omitempty"`
}

// SendEmail asks the server to deliver an email
func (a *API) SendEmail(ctx context.Context, req EmailRequest) error {
	return a.do(ctx, http.MethodPost, "/api/notifications/email", nil, req, nil)
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
			Method:     method,
			URL:        path,
		}
		a.logger.Debug("API request failed", "method", method, "path", path, "status", resp.StatusCode)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage prefers the error and message fields of a JSON error body
func errorMessage(status int, data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return http.StatusText(status)
}
