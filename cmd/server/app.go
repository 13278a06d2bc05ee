package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/ortho-api/internal/archive"
	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/phrazzld/ortho-api/internal/events"
	"github.com/phrazzld/ortho-api/internal/platform/memory"
	"github.com/phrazzld/ortho-api/internal/platform/webodm"
	"github.com/phrazzld/ortho-api/internal/service"
	"github.com/phrazzld/ortho-api/internal/store"
	"github.com/phrazzld/ortho-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	taskStore store.TaskStore
	archives  *archive.Store
	remote    *webodm.Client

	// Event system
	eventEmitter *events.InMemoryEventEmitter

	taskManager *task.Manager
	taskService service.TaskService
}

// newApplication creates a new application instance with all dependencies initialized.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.archives, err = archive.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive storage: %w", err)
	}

	app.remote, err = webodm.NewClient(cfg.Remote, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remote client: %w", err)
	}

	app.taskStore = memory.NewTaskStore()

	app.taskManager, err = task.NewManager(app.taskStore, app.archives, app.remote, cfg.Task, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task manager: %w", err)
	}

	// Pipelines are started and stopped by events the service emits
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(task.NewEventHandler(app.taskManager, logger))

	app.taskService, err = service.NewTaskService(app.taskStore, app.archives, app.eventEmitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("Application initialized successfully",
		"upload_dir", cfg.Storage.UploadDir,
		"output_dir", cfg.Storage.OutputDir)
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup stops every running pipeline. Tasks still in progress are marked
// failed, since the registry does not outlive the process.
func (app *application) cleanup() {
	if app.taskManager != nil {
		app.taskManager.Stop()
	}

	app.logger.Info("Application shutdown completed")
}
