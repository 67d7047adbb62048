package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrUnknownLevel is returned by Levels.SetLevel for a name it cannot parse
var ErrUnknownLevel = errors.New("unknown log level")

// Levels is the level shared by every handler of a server logger. It can be
// changed while the server runs.
type Levels struct {
	current    slog.LevelVar
	configured slog.Level
}

func newLevels(name string) *Levels {
	l := &Levels{configured: parseLevel(name)}
	l.current.Set(l.configured)
	return l
}

// Level returns the active level name
func (l *Levels) Level() string {
	return levelName(l.current.Level())
}

// Configured returns the level name the logger was built with
func (l *Levels) Configured() string {
	return levelName(l.configured)
}

// SetLevel switches to the named level (debug, info, warn or error).
func (l *Levels) SetLevel(name string) error {
	level, ok := lookupLevel(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
	l.current.Set(level)
	return nil
}

// Reset restores the configured level
func (l *Levels) Reset() {
	l.current.Set(l.configured)
}

func levelName(level slog.Level) string {
	return strings.ToLower(level.String())
}

func lookupLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

func parseLevel(name string) slog.Level {
	level, _ := lookupLevel(name)
	return level
}

// NewLogger builds the server logger: console output plus a rotated log
// file when one is configured. The returned Levels adjusts both.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, *Levels) {
	levels := newLevels(cfg.Level)
	level := &levels.current

	if cfg.OutputFile == "" {
		return slog.New(consoleHandler(os.Stdout, cfg.Format, level)), levels
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.OutputFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	if cfg.Format == "json" {
		out := io.MultiWriter(os.Stdout, fileWriter)
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), levels
	}

	// Plain text to the file, tinted to the console when it is a terminal
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: level})
	return slog.New(NewMultiHandler(consoleHandler(os.Stdout, cfg.Format, level), fileHandler)), levels
}

// NewCLILogger builds a console-only logger for the accelerator CLI, which
// keeps stdout for command output.
func NewCLILogger(level string, w io.Writer) *slog.Logger {
	return slog.New(consoleHandler(w, "text", parseLevel(level)))
}

func consoleHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:   level,
		NoColor: !shouldUseColors(w),
	})
}

// shouldUseColors reports whether w is a colour-capable terminal
func shouldUseColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}

	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}

// MultiHandler fans a record out to several handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: next}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: next}
}
