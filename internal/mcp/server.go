package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Store is the read-only view of the Remote Store the tools need
type Store interface {
	storage.MigrationReader
	ListProjects(ctx context.Context) ([]*models.Project, error)
}

// Server wraps the MCP server and provides migration history tools
type Server struct {
	mcpServer *server.MCPServer
	sseServer *server.SSEServer
	store     Store
	logger    *slog.Logger
	addr      string
	mu        sync.RWMutex
	running   bool
}

// Config holds configuration for the MCP server
type Config struct {
	// Address to listen on (e.g., ":8081")
	Address string
}

// NewServer creates a new MCP server with migration tools
func NewServer(store Store, logger *slog.Logger, cfg Config) *Server {
	mcpServer := server.NewMCPServer(
		"Migration Accelerator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(`You are the Migration Accelerator assistant. You can inspect the history of
SnapLogic package migrations: list and filter past runs, look up a single run by execution id,
summarise outcomes and group failures by their error message. The tools are read-only.`),
	)

	s := &Server{
		mcpServer: mcpServer,
		store:     store,
		logger:    logger,
		addr:      cfg.Address,
	}

	s.registerTools()

	return s
}

// Start starts the MCP server on the configured address. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already running")
	}
	s.running = true
	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
	)
	sse := s.sseServer
	s.mu.Unlock()

	s.logger.Info("Starting MCP server", "address", s.addr)

	if err := sse.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the MCP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Stopping MCP server")
	s.running = false

	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown MCP server: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server's listening address
func (s *Server) Address() string {
	return s.addr
}

func (s *Server) registerTools() {
	statuses := make([]string, 0, len(models.AllStatuses()))
	for _, status := range models.AllStatuses() {
		statuses = append(statuses, string(status))
	}

	s.mcpServer.AddTool(
		mcp.NewTool("list_migrations",
			mcp.WithDescription("List past migrations newest first. Filters combine; all are optional."),
			mcp.WithString("user",
				mcp.Description("Email of the user who started the migration"),
			),
			mcp.WithString("project",
				mcp.Description("Project name; use 'Unassigned' for migrations without a project"),
			),
			mcp.WithString("status",
				mcp.Description("Filter by migration status"),
				mcp.Enum(statuses...),
			),
			mcp.WithString("search",
				mcp.Description("Case-insensitive substring of the uploaded file name"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of migrations to return (default 20, max 100)"),
			),
		),
		s.handleListMigrations,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_migration",
			mcp.WithDescription("Get one migration by execution id, including the upstream result payload."),
			mcp.WithString("execution_id",
				mcp.Required(),
				mcp.Description("Execution id of the migration"),
			),
		),
		s.handleGetMigration,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("migration_stats",
			mcp.WithDescription("Count migrations per status and report the success rate of finished ones."),
		),
		s.handleMigrationStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List the projects migrations can be filed under."),
		),
		s.handleListProjects,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("failure_summary",
			mcp.WithDescription("Group failed migrations by error message, most frequent first."),
			mcp.WithString("project",
				mcp.Description("Restrict to one project"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Number of recent failures to inspect (default 100, max 500)"),
			),
		),
		s.handleFailureSummary,
	)

	s.logger.Info("Registered MCP tools", "count", 5)
}
