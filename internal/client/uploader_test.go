package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploader_UploadSendsMultipart(t *testing.T) {
	var (
		gotFile     string
		gotFileName string
		gotOptions  models.UploadOptions
	)
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotFile = string(data)
		gotFileName = header.Filename
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("options")), &gotOptions))

		writeJSON(w, http.StatusOK, map[string]any{"message": "Success", "pipelines": 2})
	})
	uploader := NewUploader(srv.URL+"/upload", testLogger())

	opts := models.UploadOptions{TargetEnvironment: "prod", NamingConvention: models.DefaultNamingConvention, GenerateReport: true}
	payload, err := uploader.Upload(context.Background(), strings.NewReader("zip-bytes"), "/tmp/export.zip", opts)
	require.NoError(t, err)

	assert.Equal(t, "zip-bytes", gotFile)
	assert.Equal(t, "export.zip", gotFileName)
	assert.Equal(t, opts, gotOptions)

	result, err := relay.ParseResult(payload)
	require.NoError(t, err)
	assert.IsType(t, relay.ImmediateResult{}, result)
}

func TestUploader_EmptyResponseIsNormalized(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
	uploader := NewUploader(srv.URL, testLogger())

	payload, err := uploader.Upload(context.Background(), strings.NewReader("x"), "a.zip", models.UploadOptions{})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, relay.MessageEmptyResponse, body["message"])
}

func TestUploader_ErrorStatusCarriesMessage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "SnapLogic request failed", "message": "bad gateway"})
	})
	uploader := NewUploader(srv.URL, testLogger())

	_, err := uploader.Upload(context.Background(), strings.NewReader("x"), "a.zip", models.UploadOptions{})
	require.Error(t, err)

	var statusErr *relay.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestUploader_DeadlineIsTimeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	uploader := NewUploader(srv.URL, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := uploader.Upload(ctx, strings.NewReader("x"), "a.zip", models.UploadOptions{})
	require.Error(t, err)
	assert.True(t, relay.IsTimeout(err))
	assert.False(t, IsCancellation(err))
}

func TestUploader_CancelIsPreserved(t *testing.T) {
	started := make(chan struct{})
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	uploader := NewUploader(srv.URL, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := uploader.Upload(ctx, strings.NewReader("x"), "a.zip", models.UploadOptions{})
	require.Error(t, err)
	assert.True(t, IsCancellation(err))
	assert.False(t, relay.IsTimeout(err))
}

func TestUploader_StatusAndResults(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload/status/job-7":
			writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "progress": 100})
		case "/upload/results/job-7":
			writeJSON(w, http.StatusOK, map[string]any{"pipelines": 4})
		case "/upload/report/job-7":
			assert.Equal(t, "csv", r.URL.Query().Get("format"))
			_, _ = io.WriteString(w, "name,status\n")
		default:
			http.NotFound(w, r)
		}
	})
	uploader := NewUploader(srv.URL+"/upload/", testLogger())

	status, err := uploader.Status(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, relay.JobCompleted, status.Status)
	require.NotNil(t, status.Progress)
	assert.Equal(t, 100, *status.Progress)

	results, err := uploader.Results(context.Background(), "job-7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pipelines":4}`, string(results))

	report, err := uploader.Report(context.Background(), "job-7", "csv")
	require.NoError(t, err)
	assert.Equal(t, "name,status\n", string(report))

	_, err = uploader.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
