package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"gorm.io/gorm"
)

// MigrationFilter narrows ListMigrations; zero values match everything
type MigrationFilter struct {
	UserEmail string
	Project   string
	Status    models.MigrationStatus
	Search    string // substring of the file name, case-insensitive
	Limit     int
}

type migrationRow struct {
	models.Migration
	UserEmail   *string `gorm:"column:user_email"`
	UserName    *string `gorm:"column:user_name"`
	ProjectName *string `gorm:"column:project_name"`
}

func (d *Database) migrationQuery(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).
		Table("migrations m").
		Select("m.*, u.email AS user_email, u.name AS user_name, p.name AS project_name").
		Joins("LEFT JOIN users u ON m.user_id = u.id").
		Joins("LEFT JOIN projects p ON m.project_id = p.id")
}

// ListMigrations returns migration records newest first, in display form
func (d *Database) ListMigrations(ctx context.Context, filter MigrationFilter) ([]models.MigrationRecord, error) {
	query := d.migrationQuery(ctx)

	if filter.UserEmail != "" {
		query = query.Where("LOWER(u.email) = LOWER(?)", filter.UserEmail)
	}
	if filter.Project != "" {
		if filter.Project == models.DefaultProject {
			query = query.Where("m.project_id IS NULL")
		} else {
			query = query.Where("LOWER(p.name) = LOWER(?)", filter.Project)
		}
	}
	if filter.Status != "" {
		query = query.Where("m.status = ?", filter.Status.StorageValue())
	}
	if filter.Search != "" {
		query = query.Where(d.dialect.ContainsIgnoreCase("m.file_name"), "%"+filter.Search+"%")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []migrationRow
	if err := query.Order("m.created_at DESC").Order("m.id DESC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	records := make([]models.MigrationRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// GetMigrationByExecutionID returns the record or nil when absent
func (d *Database) GetMigrationByExecutionID(ctx context.Context, executionID string) (*models.MigrationRecord, error) {
	var rows []migrationRow
	err := d.migrationQuery(ctx).
		Where("m.execution_id = ?", executionID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get migration: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	record := rows[0].toRecord()
	return &record, nil
}

// UpsertMigration writes a migration keyed by its execution id. An existing
// row is updated in place; otherwise a new row is inserted. Returns the row
// id and whether it was created.
func (d *Database) UpsertMigration(ctx context.Context, in models.MigrationInput) (int64, bool, error) {
	executionID := strings.TrimSpace(in.ExecutionID)
	if executionID == "" || in.UserID == 0 {
		return 0, false, fmt.Errorf("%w: execution id and user id are required", ErrValidation)
	}

	var status string
	if in.Status != "" {
		parsed, err := models.ParseStatus(in.Status)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		status = parsed.StorageValue()
	}

	var durationSeconds *int64
	if in.Duration != nil {
		seconds := *in.Duration / 1000
		if seconds < 0 {
			seconds = 0
		}
		durationSeconds = &seconds
	}

	var resultData *string
	if raw := strings.TrimSpace(string(in.ResultData)); raw != "" && raw != "null" {
		if !json.Valid(in.ResultData) {
			return 0, false, fmt.Errorf("%w: resultData is not valid JSON", ErrValidation)
		}
		resultData = &raw
	}

	var (
		id      int64
		created bool
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Migration
		err := tx.Where("execution_id = ?", executionID).First(&existing).Error
		switch {
		case err == nil:
			id = existing.ID
			return updateMigration(tx, &existing, in, status, durationSeconds, resultData)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check existing migration: %w", err)
		}

		var userCount int64
		if err := tx.Model(&models.User{}).Where("id = ?", in.UserID).Count(&userCount).Error; err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if userCount == 0 {
			return fmt.Errorf("%w: user %d does not exist", ErrValidation, in.UserID)
		}

		if status == "" {
			status = models.StatusPending.StorageValue()
		}
		row := models.Migration{
			ExecutionID: executionID,
			UserID:      in.UserID,
			ProjectID:   in.ProjectID,
			Status:      status,
			Duration:    durationSeconds,
			ResultData:  resultData,
		}
		if in.FileName != "" {
			fileName := in.FileName
			row.FileName = &fileName
		}
		start := time.Now().UTC()
		if in.StartTime != nil && !in.StartTime.IsZero() {
			start = in.StartTime.UTC()
		}
		row.StartTime = &start
		if in.EndTime != nil && !in.EndTime.IsZero() {
			end := in.EndTime.UTC()
			row.EndTime = &end
		}

		if err := tx.Create(&row).Error; err != nil {
			return translateWriteError(fmt.Errorf("failed to create migration: %w", err), "execution id")
		}
		id = row.ID
		created = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

func updateMigration(tx *gorm.DB, existing *models.Migration, in models.MigrationInput, status string, durationSeconds *int64, resultData *string) error {
	updates := map[string]interface{}{}
	if status != "" {
		updates["status"] = status
	}
	if in.EndTime != nil && !in.EndTime.IsZero() {
		updates["end_time"] = in.EndTime.UTC()
	}
	if durationSeconds != nil {
		updates["duration"] = *durationSeconds
	}
	if resultData != nil {
		updates["result_data"] = *resultData
	}
	if in.ProjectID != nil {
		updates["project_id"] = *in.ProjectID
	}
	if in.FileName != "" {
		updates["file_name"] = in.FileName
	}
	if len(updates) == 0 {
		return nil
	}

	if err := tx.Model(existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update migration: %w", err)
	}
	return nil
}

// DeleteMigration removes one migration by row id
func (d *Database) DeleteMigration(ctx context.Context, id int64) error {
	result := d.db.WithContext(ctx).Delete(&models.Migration{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete migration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: migration %d", ErrNotFound, id)
	}
	return nil
}

// DeleteAllMigrations clears the migration history and returns the number of rows removed
func (d *Database) DeleteAllMigrations(ctx context.Context) (int64, error) {
	result := d.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Migration{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete migrations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountMigrations returns the number of stored migrations
func (d *Database) CountMigrations(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Migration{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count migrations: %w", err)
	}
	return count, nil
}

// GetMigrationStats counts migrations per status
func (d *Database) GetMigrationStats(ctx context.Context) (*models.MigrationStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := d.db.WithContext(ctx).
		Model(&models.Migration{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get migration stats: %w", err)
	}

	stats := &models.MigrationStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch models.StatusFromStorage(row.Status) {
		case models.StatusSuccess:
			stats.Success += row.Count
		case models.StatusFailed:
			stats.Failed += row.Count
		case models.StatusCancelled:
			stats.Cancelled += row.Count
		case models.StatusInProgress:
			stats.InProgress += row.Count
		case models.StatusPending:
			stats.Pending += row.Count
		}
	}
	return stats, nil
}

// toRecord converts a joined row to the display form served by the API
func (r *migrationRow) toRecord() models.MigrationRecord {
	record := models.MigrationRecord{
		ID:          r.ID,
		ExecutionID: r.ExecutionID,
		Status:      models.StatusFromStorage(r.Status),
		Project:     models.DefaultProject,
		EndTime:     r.EndTime,
		Timestamp:   r.CreatedAt,
	}
	if r.FileName != nil {
		record.FileName = *r.FileName
	}
	if r.StartTime != nil {
		record.Timestamp = *r.StartTime
		record.StartTime = r.StartTime.UnixMilli()
	}
	if r.Duration != nil {
		ms := *r.Duration * 1000
		record.Duration = &ms
	}
	if r.UserEmail != nil {
		record.User = *r.UserEmail
	}
	if r.UserName != nil {
		record.UserName = *r.UserName
	}
	if r.ProjectName != nil && *r.ProjectName != "" {
		record.Project = *r.ProjectName
	}
	if r.ResultData != nil {
		raw := json.RawMessage(*r.ResultData)
		record.ResultData = raw
		record.Message = messageOf(raw)
	}
	return record
}

// messageOf extracts resultData.message when the payload is an object
func messageOf(raw json.RawMessage) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Message
}
