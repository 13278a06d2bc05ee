// Package main implements the entry point for the orthomosaic API server,
// which accepts drone image archives and turns them into orthomosaics
// through a remote WebODM node.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/phrazzld/ortho-api/internal/platform/logger"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		app.logger.Error("server stopped with error", "error", err)
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration, sets up logging and wires the
// application components.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"remote_host", cfg.Remote.Host,
		"max_concurrent", cfg.Task.MaxConcurrent)
	if cfg.Remote.Token == "" {
		slog.Warn("Remote token is empty; the remote service will likely reject requests")
	}

	return newApplication(cfg, l)
}
