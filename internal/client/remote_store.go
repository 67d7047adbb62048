package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// RemoteStore keeps a session's migration records in the management API.
type RemoteStore struct {
	api  *API
	user models.SessionUser
}

// NewRemoteStore returns a store scoped to user's migrations
func NewRemoteStore(api *API, user models.SessionUser) *RemoteStore {
	return &RemoteStore{api: api, user: user}
}

// ListRecords returns the user's records, newest first
func (s *RemoteStore) ListRecords(ctx context.Context) ([]models.MigrationRecord, error) {
	records, err := s.api.ListMigrations(ctx, MigrationQuery{User: s.user.Email})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote migrations: %w", err)
	}
	for i := range records {
		records[i].ResultData = unwrapResult(records[i].ResultData)
	}
	return records, nil
}

// SaveRecord upserts rec by execution id
func (s *RemoteStore) SaveRecord(ctx context.Context, rec models.MigrationRecord) error {
	in := models.MigrationInput{
		ExecutionID: rec.ExecutionID,
		UserID:      s.user.ID,
		FileName:    rec.FileName,
		Status:      string(rec.Status),
		Duration:    rec.Duration,
		ResultData:  wrapResult(rec.Message, rec.ResultData),
	}
	if id, ok := s.user.ProjectID(rec.Project); ok {
		in.ProjectID = &id
	}
	if rec.StartTime != 0 {
		in.StartTime = models.NewTimestamp(rec.Started())
	}
	if rec.EndTime != nil {
		in.EndTime = models.NewTimestamp(*rec.EndTime)
	}
	if _, err := s.api.SaveMigration(ctx, in); err != nil {
		return fmt.Errorf("failed to save remote migration %s: %w", rec.ExecutionID, err)
	}
	return nil
}

// resultEnvelope is the stored form of resultData. The server reads the
// display message from its message field; data holds the upstream payload.
type resultEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func wrapResult(message string, data json.RawMessage) json.RawMessage {
	if message == "" && len(data) == 0 {
		return nil
	}
	encoded, err := json.Marshal(resultEnvelope{Message: message, Data: data})
	if err != nil {
		return nil
	}
	return encoded
}

// unwrapResult returns the upstream payload of an envelope. Payloads written
// by other clients are returned unchanged.
func unwrapResult(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	for key := range fields {
		if key != "message" && key != "data" {
			return raw
		}
	}
	if _, ok := fields["message"]; !ok {
		return raw
	}
	return fields["data"]
}
