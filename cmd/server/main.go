// Package main is the entry point for the blog platform server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables, via internal/config)
// 2. Create process-wide dependencies (the logger)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...), which keeps it testable without a process.
package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/blog-platform/internal/config"
	"github.com/sakif/blog-platform/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Load parses every variable and validates the result, so a bad value
	// stops the server here rather than at first use.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text output reads well in a terminal; JSON is for log collectors.
	logger := slog.New(newLogHandler(os.Stdout, cfg.Log))
	slog.SetDefault(logger)

	// === 3. PREPARE THE DATA DIRECTORY ===
	// os.MkdirAll is `mkdir -p`. The upload directory is created by the
	// bucket itself.
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
