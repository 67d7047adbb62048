package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/lifecycle"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultListLimit    = 20
	maxListLimit        = 100
	defaultFailureLimit = 100
	maxFailureLimit     = 500
)

func toSummary(rec models.MigrationRecord) MigrationSummary {
	summary := MigrationSummary{
		ExecutionID: rec.ExecutionID,
		FileName:    rec.FileName,
		Status:      string(rec.Status),
		Project:     rec.ProjectName(),
		User:        rec.User,
		StartedAt:   rec.Started().UTC(),
		EndedAt:     rec.EndTime,
		Message:     rec.Message,
	}
	if rec.Duration != nil {
		summary.Duration = lifecycle.FormattedDuration(rec.Duration)
	}
	return summary
}

func clamp(value, fallback, max int) int {
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

// handleListMigrations implements the list_migrations tool
func (s *Server) handleListMigrations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := storage.MigrationFilter{
		UserEmail: req.GetString("user", ""),
		Project:   req.GetString("project", ""),
		Search:    req.GetString("search", ""),
		Limit:     clamp(req.GetInt("limit", defaultListLimit), defaultListLimit, maxListLimit),
	}
	if raw := req.GetString("status", ""); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Status = status
	}

	records, err := s.store.ListMigrations(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list migrations", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query migrations: %v", err)), nil
	}

	summaries := make([]MigrationSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, toSummary(rec))
	}

	return s.jsonResult(ListMigrationsOutput{
		Migrations: summaries,
		TotalCount: len(summaries),
		Message:    fmt.Sprintf("Found %d migrations matching criteria", len(summaries)),
	})
}

// handleGetMigration implements the get_migration tool
func (s *Server) handleGetMigration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	rec, err := s.store.GetMigrationByExecutionID(ctx, strings.TrimSpace(executionID))
	if err != nil {
		s.logger.Error("Failed to get migration", "execution_id", executionID, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get migration: %v", err)), nil
	}
	if rec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Migration %s not found", executionID)), nil
	}

	return s.jsonResult(MigrationDetail{
		MigrationSummary: toSummary(*rec),
		ResultData:       rec.ResultData,
	})
}

// handleMigrationStats implements the migration_stats tool
func (s *Server) handleMigrationStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.GetMigrationStats(ctx)
	if err != nil {
		s.logger.Error("Failed to get migration stats", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	output := MigrationStatsOutput{Stats: *stats}
	if finished := stats.Success + stats.Failed + stats.Cancelled; finished > 0 {
		output.SuccessRate = float64(stats.Success) * 100 / float64(finished)
	}
	return s.jsonResult(output)
}

// handleListProjects implements the list_projects tool
func (s *Server) handleListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		s.logger.Error("Failed to list projects", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
	}

	infos := make([]ProjectInfo, 0, len(projects))
	for _, p := range projects {
		infos = append(infos, ProjectInfo{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	return s.jsonResult(ListProjectsOutput{Projects: infos, TotalCount: len(infos)})
}

// handleFailureSummary implements the failure_summary tool
func (s *Server) handleFailureSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.store.ListMigrations(ctx, storage.MigrationFilter{
		Project: req.GetString("project", ""),
		Status:  models.StatusFailed,
		Limit:   clamp(req.GetInt("limit", defaultFailureLimit), defaultFailureLimit, maxFailureLimit),
	})
	if err != nil {
		s.logger.Error("Failed to list failed migrations", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query migrations: %v", err)), nil
	}

	groups := make(map[string]*FailureGroup)
	for _, rec := range records {
		message := rec.Message
		if message == "" {
			message = models.MessageJobFailed
		}
		group, ok := groups[message]
		if !ok {
			group = &FailureGroup{Message: message, Files: []string{}}
			groups[message] = group
		}
		group.Count++
		if rec.FileName != "" {
			group.Files = append(group.Files, rec.FileName)
		}
	}

	output := FailureSummaryOutput{Groups: make([]FailureGroup, 0, len(groups)), TotalFailed: len(records)}
	for _, group := range groups {
		output.Groups = append(output.Groups, *group)
	}
	sort.Slice(output.Groups, func(i, j int) bool {
		if output.Groups[i].Count != output.Groups[j].Count {
			return output.Groups[i].Count > output.Groups[j].Count
		}
		return output.Groups[i].Message < output.Groups[j].Message
	})
	return s.jsonResult(output)
}

// jsonResult creates a JSON tool result
func (s *Server) jsonResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
