// Package mcp provides a Model Context Protocol server for the migration
// accelerator. It exposes migration history tools to AI agents.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// MigrationSummary is the compact form of a migration record in tool output
type MigrationSummary struct {
	ExecutionID string     `json:"execution_id"`
	FileName    string     `json:"file_name"`
	Status      string     `json:"status"`
	Project     string     `json:"project"`
	User        string     `json:"user,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// MigrationDetail adds the upstream result payload to a summary
type MigrationDetail struct {
	MigrationSummary
	ResultData json.RawMessage `json:"result_data,omitempty"`
}

// ListMigrationsOutput is the output of list_migrations
type ListMigrationsOutput struct {
	Migrations []MigrationSummary `json:"migrations"`
	TotalCount int                `json:"total_count"`
	Message    string             `json:"message"`
}

// MigrationStatsOutput is the output of migration_stats
type MigrationStatsOutput struct {
	Stats       models.MigrationStats `json:"stats"`
	SuccessRate float64               `json:"success_rate_percent"`
}

// ProjectInfo describes one project
type ProjectInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListProjectsOutput is the output of list_projects
type ListProjectsOutput struct {
	Projects   []ProjectInfo `json:"projects"`
	TotalCount int           `json:"total_count"`
}

// FailureGroup counts failed migrations sharing a message
type FailureGroup struct {
	Message string   `json:"message"`
	Count   int      `json:"count"`
	Files   []string `json:"files"`
}

// FailureSummaryOutput is the output of failure_summary
type FailureSummaryOutput struct {
	Groups      []FailureGroup `json:"groups"`
	TotalFailed int            `json:"total_failed"`
}
