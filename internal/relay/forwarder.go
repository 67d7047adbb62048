// Package relay forwards uploaded packages to the SnapLogic conversion API,
// attaching the server-held bearer token, and parses what comes back.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Response is an upstream answer passed back to the caller verbatim
type Response struct {
	StatusCode int
	Body       []byte
}

// Forwarder sends requests to the conversion API.
type Forwarder struct {
	baseURL       string
	hasToken      bool
	client        *http.Client
	limiter       *rate.Limiter
	timeout       time.Duration
	statusTimeout time.Duration
	logger        *slog.Logger
}

// NewForwarder creates a forwarder for cfg. A missing token is reported per
// request so the server can still start and answer with a clear error.
func NewForwarder(cfg config.RelayConfig, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	statusTimeout := time.Duration(cfg.StatusTimeoutSeconds) * time.Second
	if statusTimeout <= 0 {
		statusTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})

	return &Forwarder{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		hasToken: cfg.Token != "",
		// Timeouts come from per-request contexts, not the client
		client: &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
		limiter:       rate.NewLimiter(limit, burst),
		timeout:       timeout,
		statusTimeout: statusTimeout,
		logger:        logger,
	}
}

// Upload posts body to the conversion API with the caller's content type.
// contentLength may be negative when unknown; the body is then buffered so
// the upstream always sees an explicit Content-Length.
func (f *Forwarder) Upload(ctx context.Context, body io.Reader, contentType string, contentLength int64) (*Response, error) {
	if !f.hasToken {
		return nil, ErrTokenMissing
	}

	if contentLength < 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		body = bytes.NewReader(data)
		contentLength = int64(len(data))
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.ContentLength = contentLength
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	f.logger.Debug("Forwarding upload", "content_type", contentType, "content_length", contentLength)
	return f.do(ctx, req)
}

// Status fetches the state of an upstream job
func (f *Forwarder) Status(ctx context.Context, jobID string) (*Response, error) {
	return f.get(ctx, "status", jobID, nil)
}

// Results fetches the output of a completed upstream job
func (f *Forwarder) Results(ctx context.Context, jobID string) (*Response, error) {
	return f.get(ctx, "results", jobID, nil)
}

// Report fetches the migration report of a job in the requested format
func (f *Forwarder) Report(ctx context.Context, jobID, format string) (*Response, error) {
	query := url.Values{}
	if format != "" {
		query.Set("format", format)
	}
	return f.get(ctx, "report", jobID, query)
}

func (f *Forwarder) get(ctx context.Context, resource, jobID string, query url.Values) (*Response, error) {
	if !f.hasToken {
		return nil, ErrTokenMissing
	}

	ctx, cancel := context.WithTimeout(ctx, f.statusTimeout)
	defer cancel()

	target := f.baseURL + "/" + resource + "/" + url.PathEscape(jobID)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	return f.do(ctx, req)
}

func (f *Forwarder) do(ctx context.Context, req *http.Request) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, classify(ctx, err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("Upstream request failed",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"duration", time.Since(start),
			"error", err)
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}

	f.logger.Debug("Upstream responded",
		"method", req.Method,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start))
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
