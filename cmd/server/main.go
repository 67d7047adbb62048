package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/api"
	"github.com/kuhlman-labs/migration-accelerator/internal/auth"
	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/kuhlman-labs/migration-accelerator/internal/logging"
	"github.com/kuhlman-labs/migration-accelerator/internal/mcp"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger, levels := logging.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Initialize database
	db, err := storage.NewDatabase(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations
	if err := db.Migrate(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	if cfg.Database.Seed {
		seedDatabase(db, cfg.Database.SeedFile)
	}

	if cfg.Relay.Token == "" {
		slog.Warn("SNAPLOGIC_API_TOKEN is not set; uploads will be rejected until it is configured")
	}

	if cfg.Auth.SessionSecret == "" {
		slog.Warn("No session secret configured; tokens will not survive a restart")
	}
	jwtManager, err := auth.NewJWTManager(cfg.Auth.SessionSecret, cfg.Auth.SessionDurationHours)
	if err != nil {
		slog.Error("Failed to initialize session tokens", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg, db, jwtManager, logger, api.WithLogLevels(levels))

	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(db, logger.With("component", "mcp"), mcp.Config{Address: cfg.MCP.Address})
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// WriteTimeout must outlast the relay's upload ceiling
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      cfg.Relay.Timeout() + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "database", cfg.Database.Type)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if mcpServer != nil {
		if err := mcpServer.Stop(ctx); err != nil {
			slog.Error("Failed to stop MCP server", "error", err)
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// seedDatabase loads the demo projects and users into an empty database
func seedDatabase(db *storage.Database, seedFile string) {
	var (
		seed *storage.SeedData
		err  error
	)
	if seedFile != "" {
		seed, err = storage.LoadSeed(seedFile)
	} else {
		seed, err = storage.DefaultSeed()
	}
	if err != nil {
		slog.Error("Failed to load seed data", "file", seedFile, "error", err)
		os.Exit(1)
	}

	seeded, err := db.Seed(context.Background(), seed)
	if err != nil {
		slog.Error("Failed to seed database", "error", err)
		os.Exit(1)
	}
	if seeded {
		slog.Info("Seeded database", "projects", len(seed.Projects), "users", len(seed.Users))
		return
	}
	users, err := db.CountUsers(context.Background())
	if err != nil {
		slog.Warn("Failed to count users", "error", err)
		return
	}
	slog.Info("Database already holds data; seed skipped", "users", users)
}
