package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/relay"
)

// Uploader sends packages through the upload relay and polls upstream jobs.
// It carries no credentials; the relay attaches them.
type Uploader struct {
	relayURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewUploader creates an uploader for the relay at relayURL (ending in /upload)
func NewUploader(relayURL string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		relayURL: strings.TrimSuffix(relayURL, "/"),
		// Deadlines come from the caller's context
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Upload posts file as multipart form data with the options next to it and
// returns the normalized upstream payload. The body is streamed so large
// packages are never held in memory.
func (u *Uploader) Upload(ctx context.Context, file io.Reader, fileName string, opts models.UploadOptions) (json.RawMessage, error) {
	if file == nil {
		return nil, errors.New("no file to upload")
	}

	options, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload options: %w", err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, file, fileName, options))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.relayURL, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	u.logger.Debug("Uploading package", "file", fileName, "relay", u.relayURL)
	status, body, err := u.send(ctx, req)
	// Unblock the form writer if the request ended before reading the body
	pr.Close()
	if err != nil {
		return nil, err
	}
	return relay.Normalize(status, body)
}

func writeForm(form *multipart.Writer, file io.Reader, fileName string, options []byte) error {
	part, err := form.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := form.WriteField("options", string(options)); err != nil {
		return err
	}
	return form.Close()
}

// Status queries the state of an upstream job
func (u *Uploader) Status(ctx context.Context, jobID string) (*relay.JobStatus, error) {
	body, err := u.get(ctx, "status", jobID)
	if err != nil {
		return nil, err
	}
	var status relay.JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}
	return &status, nil
}

// Results fetches the output of a completed upstream job
func (u *Uploader) Results(ctx context.Context, jobID string) (json.RawMessage, error) {
	body, err := u.get(ctx, "results", jobID)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("job results are not JSON")
	}
	return body, nil
}

// Report downloads the migration report of a job in format (json or csv)
func (u *Uploader) Report(ctx context.Context, jobID, format string) ([]byte, error) {
	target := u.relayURL + "/report/" + url.PathEscape(jobID)
	if format != "" {
		target += "?format=" + url.QueryEscape(format)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	status, body, err := u.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &APIError{StatusCode: status, Message: fmt.Sprintf("HTTP error! status: %d", status), Method: http.MethodGet, URL: target}
	}
	return body, nil
}

func (u *Uploader) get(ctx context.Context, resource, jobID string) ([]byte, error) {
	target := u.relayURL + "/" + resource + "/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := u.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &APIError{StatusCode: status, Message: fmt.Sprintf("HTTP error! status: %d", status), Method: http.MethodGet, URL: target}
	}
	return body, nil
}

// send performs req and classifies transport failures: a cancelled context
// stays context.Canceled, an expired one becomes relay.ErrTimeout.
func (u *Uploader) send(ctx context.Context, req *http.Request) (int, []byte, error) {
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, nil, u.classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, u.classify(ctx, err)
	}
	return resp.StatusCode, body, nil
}

func (u *Uploader) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return fmt.Errorf("request aborted: %w", context.Canceled)
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", relay.ErrTimeout, err)
	default:
		return wrapTransportError(err)
	}
}
