package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MigrationRecord is one migration attempt as the client and the management
// API see it. ExecutionID is assigned once at creation and is the key used to
// reconcile the local cache with the remote store.
type MigrationRecord struct {
	ID          int64           `json:"id,omitempty"`
	ExecutionID string          `json:"executionId"`
	FileName    string          `json:"fileName"`
	Status      MigrationStatus `json:"status"`
	Project     string          `json:"project"`
	User        string          `json:"user"`
	UserName    string          `json:"userName,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	StartTime   int64           `json:"startTime"` // unix milliseconds
	EndTime     *time.Time      `json:"endTime,omitempty"`
	Duration    *int64          `json:"duration"` // milliseconds, final only once EndTime is set
	Message     string          `json:"message"`
	ResultData  json.RawMessage `json:"resultData,omitempty"`
}

// Started returns the creation instant.
func (r MigrationRecord) Started() time.Time {
	return time.UnixMilli(r.StartTime)
}

// Elapsed returns the stored duration for finished records and the live
// running time for everything else.
func (r MigrationRecord) Elapsed(now time.Time) time.Duration {
	if r.EndTime != nil && r.Duration != nil {
		return time.Duration(*r.Duration) * time.Millisecond
	}
	if r.StartTime == 0 {
		return 0
	}
	elapsed := now.Sub(r.Started())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Finalize returns a copy of r moved to a terminal status at now.
func (r MigrationRecord) Finalize(status MigrationStatus, message string, now time.Time) MigrationRecord {
	out := r
	out.Status = status
	out.Message = message
	end := now.UTC()
	out.EndTime = &end
	duration := now.Sub(r.Started()).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	out.Duration = &duration
	return out
}

// ProjectName returns the project or the "Unassigned" placeholder.
func (r MigrationRecord) ProjectName() string {
	if strings.TrimSpace(r.Project) == "" {
		return DefaultProject
	}
	return r.Project
}

// Migration is the relational row behind a MigrationRecord.
type Migration struct {
	ID          int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	ExecutionID string     `json:"execution_id" gorm:"column:execution_id;not null;uniqueIndex;size:64"`
	UserID      int64      `json:"user_id" gorm:"column:user_id;not null;index"`
	ProjectID   *int64     `json:"project_id,omitempty" gorm:"column:project_id;index"`
	FileName    *string    `json:"file_name,omitempty" gorm:"column:file_name;size:512"`
	Status      string     `json:"status" gorm:"column:status;not null;default:pending;size:32;index"`
	StartTime   *time.Time `json:"start_time,omitempty" gorm:"column:start_time"`
	EndTime     *time.Time `json:"end_time,omitempty" gorm:"column:end_time"`
	Duration    *int64     `json:"duration,omitempty" gorm:"column:duration"` // seconds
	ResultData  *string    `json:"result_data,omitempty" gorm:"column:result_data;type:text"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for Migration model
func (Migration) TableName() string {
	return "migrations"
}

// MigrationInput is the body accepted by the migrations upsert endpoint.
type MigrationInput struct {
	ExecutionID string          `json:"executionId"`
	UserID      int64           `json:"userId"`
	ProjectID   *int64          `json:"projectId,omitempty"`
	FileName    string          `json:"fileName,omitempty"`
	Status      string          `json:"status,omitempty"`
	StartTime   *Timestamp      `json:"startTime,omitempty"`
	EndTime     *Timestamp      `json:"endTime,omitempty"`
	Duration    *int64          `json:"duration,omitempty"` // milliseconds
	ResultData  json.RawMessage `json:"resultData,omitempty"`
}

// Timestamp decodes either unix milliseconds or an RFC 3339 string and
// encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.UTC()}
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	if data[0] != '"' {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", data, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// MigrationStats holds dashboard counters.
type MigrationStats struct {
	Total      int64 `json:"total"`
	Success    int64 `json:"success"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	InProgress int64 `json:"inProgress"`
	Pending    int64 `json:"pending"`
}

// UploadOptions are the conversion settings sent next to the uploaded package.
type UploadOptions struct {
	TargetEnvironment string `json:"targetEnvironment,omitempty"`
	NamingConvention  string `json:"namingConvention,omitempty"`
	GenerateReport    bool   `json:"generateReport"`
	SendToClient      bool   `json:"sendToClient"`
}

// DefaultNamingConvention keeps the source component names.
const DefaultNamingConvention = "Original Names"
