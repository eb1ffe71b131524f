package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"pathgc/internal/config"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger writing to out and, when cfg.File is set, to a
// rotated log file as well. The returned closer releases the file.
func New(cfg config.LoggingCfg, out io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("could not parse log level: %w", err)
	}

	var (
		w      = out
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		f, err := openLogFile(cfg.File, cfg.RotationDays)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(out, f)
		closer = f
	}

	opts := slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Type {
	case JSON:
		handler = slog.NewJSONHandler(w, &opts)
	case Text:
		handler = slog.NewTextHandler(w, &opts)
	case Tint, "":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.DateTime,
			// escape codes would end up in the log file
			NoColor: cfg.File != "",
		})
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown logging type: %s", cfg.Type)
	}

	return slog.New(handler), closer, nil
}

// Initialize installs the logger from New as the slog default. The CLI
// passes stderr; stdout carries the trail.
func Initialize(cfg config.LoggingCfg, out io.Writer) (io.Closer, error) {
	logger, closer, err := New(cfg, out)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	slog.Debug("logging initialized", "type", cfg.Type, "level", cfg.Level, "file", cfg.File)
	return closer, nil
}

func openLogFile(filePath string, rotationDays int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	if rotationDays <= 0 {
		rotationDays = 30
	}

	rotateLogsIfNeeded(filePath, rotationDays)

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// rotateLogsIfNeeded rotates log files older than the specified days
func rotateLogsIfNeeded(logPath string, rotationDays int) {
	info, err := os.Stat(logPath)
	if err != nil {
		// Log file doesn't exist yet, nothing to rotate
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)
	if info.ModTime().Before(cutoffTime) {
		timestamp := info.ModTime().Format("20060102-150405")
		rotatedPath := logPath + "." + timestamp

		if err := os.Rename(logPath, rotatedPath); err != nil {
			slog.Warn("failed to rotate log file", "path", logPath, "error", err)
			return
		}
		// retention of a rotated file counts from its rotation
		now := time.Now()
		_ = os.Chtimes(rotatedPath, now, now)

		cleanupOldLogs(logPath, rotationDays)
	}
}

// cleanupOldLogs removes rotated log files older than rotation days
func cleanupOldLogs(logPath string, rotationDays int) {
	logDir := filepath.Dir(logPath)
	baseName := filepath.Base(logPath)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, baseName+".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			fullPath := filepath.Join(logDir, name)
			if err := os.Remove(fullPath); err != nil {
				slog.Warn("failed to remove old log file", "path", fullPath, "error", err)
			}
		}
	}
}
