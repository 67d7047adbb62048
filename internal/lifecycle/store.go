package lifecycle

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/kuhlman-labs/migration-accelerator/internal/client"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/relay"
)

// RecordStore is a set of migration records keyed by execution id.
type RecordStore interface {
	// ListRecords returns the records, newest first
	ListRecords(ctx context.Context) ([]models.MigrationRecord, error)
	// SaveRecord inserts rec or replaces the record with the same execution id
	SaveRecord(ctx context.Context, rec models.MigrationRecord) error
}

// Uploader is the client side of the upload relay.
type Uploader interface {
	Upload(ctx context.Context, file io.Reader, fileName string, opts models.UploadOptions) (json.RawMessage, error)
	Status(ctx context.Context, jobID string) (*relay.JobStatus, error)
	Results(ctx context.Context, jobID string) (json.RawMessage, error)
}

// Notifier is told about every migration that reaches a terminal status.
type Notifier interface {
	NotifyMigration(ctx context.Context, rec models.MigrationRecord) error
}

var (
	_ RecordStore = (*client.RemoteStore)(nil)
	_ RecordStore = (*LocalCache)(nil)
	_ RecordStore = (*FallbackStore)(nil)
	_ Uploader    = (*client.Uploader)(nil)
	_ Notifier    = (*client.EmailNotifier)(nil)
)

// FallbackStore reads and writes through Primary and switches to Fallback
// only when Primary cannot be reached. Any other Primary error is returned
// as is so programming errors are not mistaken for an outage.
type FallbackStore struct {
	Primary  RecordStore
	Fallback RecordStore
	Logger   *slog.Logger
}

// ListRecords implements RecordStore
func (s *FallbackStore) ListRecords(ctx context.Context) ([]models.MigrationRecord, error) {
	records, err := s.Primary.ListRecords(ctx)
	if err == nil || !client.IsConnectivityError(err) {
		return records, err
	}
	s.logger().Warn("Remote store unreachable, reading local history", "error", err)
	return s.Fallback.ListRecords(ctx)
}

// SaveRecord implements RecordStore
func (s *FallbackStore) SaveRecord(ctx context.Context, rec models.MigrationRecord) error {
	err := s.Primary.SaveRecord(ctx, rec)
	if err == nil || !client.IsConnectivityError(err) {
		return err
	}
	s.logger().Warn("Remote store unreachable, saving locally", "execution_id", rec.ExecutionID, "error", err)
	return s.Fallback.SaveRecord(ctx, rec)
}

func (s *FallbackStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
