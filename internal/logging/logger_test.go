package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"mixed case", "Warn", slog.LevelWarn},
		{"default level", "invalid", slog.LevelInfo},
		{"empty level", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "accelerator.log")

	logger, _ := NewLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		OutputFile: logFile,
		MaxSize:    10,
		MaxBackups: 2,
		MaxAge:     7,
	})
	if logger == nil {
		t.Fatal("NewLogger() returned nil")
	}

	logger.Info("relay forwarded upload", "status", 200)

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `"msg":"relay forwarded upload"`) {
		t.Errorf("Expected JSON log format, got: %s", string(content))
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "accelerator.log")

	logger, _ := NewLogger(config.LoggingConfig{
		Level:      "debug",
		Format:     "text",
		OutputFile: logFile,
		MaxSize:    10,
	})

	logger.Debug("polling job status")

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "polling job status") {
		t.Errorf("Expected text log with message, got: %s", string(content))
	}
}

func TestNewCLILogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCLILogger("warn", &buf)

	logger.Info("hidden")
	logger.Warn("mirror write failed", "execution_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "mirror write failed") || !strings.Contains(out, "execution_id=abc") {
		t.Errorf("unexpected CLI log output: %s", out)
	}
}

func TestLevels(t *testing.T) {
	levels := newLevels("warn")

	if levels.Level() != "warn" {
		t.Errorf("Level() = %s, want warn", levels.Level())
	}
	if err := levels.SetLevel("DEBUG"); err != nil {
		t.Fatalf("SetLevel(DEBUG) error = %v", err)
	}
	if levels.Level() != "debug" {
		t.Errorf("Level() after SetLevel = %s, want debug", levels.Level())
	}
	if err := levels.SetLevel("verbose"); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("SetLevel(verbose) error = %v, want ErrUnknownLevel", err)
	}
	if levels.Level() != "debug" {
		t.Errorf("a rejected level must not change the active one, got %s", levels.Level())
	}

	levels.Reset()
	if levels.Level() != "warn" || levels.Configured() != "warn" {
		t.Errorf("after Reset Level() = %s, Configured() = %s", levels.Level(), levels.Configured())
	}
}

func TestNewLogger_LevelsApplyAtRuntime(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "accelerator.log")
	logger, levels := NewLogger(config.LoggingConfig{Level: "info", Format: "text", OutputFile: logFile})

	logger.Debug("before switch")
	if err := levels.SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	logger.Debug("after switch")

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(content), "before switch") {
		t.Errorf("debug record written at info level: %s", content)
	}
	if !strings.Contains(string(content), "after switch") {
		t.Errorf("debug record missing after SetLevel: %s", content)
	}
}

func TestMultiHandler(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	multi := NewMultiHandler(infoHandler, debugHandler)
	ctx := context.Background()

	if !multi.Enabled(ctx, slog.LevelDebug) {
		t.Error("Enabled(debug) = false, want true when any handler accepts it")
	}

	record := slog.NewRecord(time.Now(), slog.LevelDebug, "tick", 0)
	if err := multi.Handle(ctx, record); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if infoBuf.Len() != 0 {
		t.Errorf("info handler should not receive debug record: %s", infoBuf.String())
	}
	if debugBuf.Len() == 0 {
		t.Error("debug handler buffer is empty")
	}

	withAttrs := multi.WithAttrs([]slog.Attr{slog.String("component", "relay")})
	if err := withAttrs.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "upload", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(infoBuf.String(), "component=relay") {
		t.Errorf("attrs not propagated: %s", infoBuf.String())
	}

	if multi.WithGroup("lifecycle") == nil {
		t.Error("WithGroup() returned nil")
	}
}
