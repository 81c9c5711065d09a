// Package ptlog is the shared structured-logging setup for both CLI
// binaries: a slog.Logger writing to stderr (or, with --log-file, to a
// rotated file via lumberjack) plus a per-run correlation id.
package ptlog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely a Logger writes.
type Config struct {
	// LevelName is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	// Unrecognized values fall back to INFO.
	LevelName string

	// LogFile, if non-empty, routes output through a rotating file
	// writer instead of stderr.
	LogFile string

	// MaxSizeMB, MaxBackups, MaxAgeDays configure rotation when LogFile
	// is set. Zero values use lumberjack's own defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a slog.Logger per cfg, tagged with a fresh run id under the
// "run_id" attribute so that log lines from one job invocation can be
// grepped out of a shared log file.
func New(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LevelName))); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run_id", uuid.NewString())
}
