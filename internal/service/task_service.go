package service

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/phrazzld/ortho-api/internal/events"
	"github.com/phrazzld/ortho-api/internal/store"
)

// ArchiveRepository is the file storage used by the service.
type ArchiveRepository interface {
	// Save writes an uploaded archive and returns its path
	Save(id uuid.UUID, format domain.ArchiveFormat, r io.Reader) (string, error)

	// UploadPaths lists every location an upload for id may occupy
	UploadPaths(id uuid.UUID) []string

	// OutputPath is where the result archive for id is written
	OutputPath(id uuid.UUID) string

	// Delete removes a file; a missing file is not an error
	Delete(path string) error
}

// TaskService provides task-related operations
type TaskService interface {
	// Submit stores an uploaded archive, registers a queued task for it and
	// starts processing in the background.
	Submit(ctx context.Context, filename string, r io.Reader) (*domain.Task, error)

	// GetTask retrieves a task by its ID
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks returns every known task, oldest first
	ListTasks(ctx context.Context) ([]*domain.Task, error)

	// ResultFile returns the path of a completed task's result archive
	ResultFile(ctx context.Context, id uuid.UUID) (string, error)

	// DeleteTask removes a task, stops its pipeline and deletes its files
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	tasks    store.TaskStore
	archives ArchiveRepository
	emitter  events.EventEmitter
	logger   *slog.Logger
}

// NewTaskService creates a new TaskService
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	archives ArchiveRepository,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (TaskService, error) {
	if tasks == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "task store cannot be nil"}
	}
	if archives == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "archive repository cannot be nil"}
	}
	if emitter == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "event emitter cannot be nil"}
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		tasks:    tasks,
		archives: archives,
		emitter:  emitter,
		logger:   logger.With("component", "task_service"),
	}, nil
}

// Submit validates the extension before anything is written, so a rejected
// upload leaves no task and no file behind.
func (s *taskServiceImpl) Submit(ctx context.Context, filename string, r io.Reader) (*domain.Task, error) {
	format, err := domain.ArchiveFormatFromFilename(filename)
	if err != nil {
		return nil, err
	}

	task, err := domain.NewTask(filename)
	if err != nil {
		return nil, NewTaskServiceError("submit", "failed to create task", err)
	}
	logger := s.logger.With("task_id", task.ID, "filename", filename)

	archivePath, err := s.archives.Save(task.ID, format, r)
	if err != nil {
		logger.Error("failed to save upload", "error", err)
		return nil, NewTaskServiceError("submit", "failed to save upload", err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		logger.Error("failed to register task", "error", err)
		s.removeFile(logger, archivePath)
		return nil, NewTaskServiceError("submit", "failed to register task", err)
	}

	event, err := events.NewTaskSubmittedEvent(task.ID, archivePath)
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		logger.Error("failed to start task", "error", err)
		if delErr := s.tasks.Delete(ctx, task.ID); delErr != nil && !store.IsNotFoundError(delErr) {
			logger.Warn("failed to unregister task", "error", delErr)
		}
		s.removeFile(logger, archivePath)
		return nil, NewTaskServiceError("submit", "failed to start processing", err)
	}

	logger.Info("task submitted")
	return task, nil
}

// GetTask retrieves a task by its ID
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to retrieve task", "error", err, "task_id", id)
		}
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

// ListTasks returns every known task
func (s *taskServiceImpl) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		s.logger.Error("failed to list tasks", "error", err)
		return nil, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// ResultFile checks, in order, that the task exists, that it completed, and
// that its result is still on disk.
func (s *taskServiceImpl) ResultFile(ctx context.Context, id uuid.UUID) (string, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return "", err
	}

	if task.Status != domain.TaskStatusCompleted {
		return "", &TaskNotReadyError{Status: task.Status}
	}

	info, err := os.Stat(task.OutputPath)
	if err != nil || info.IsDir() {
		s.logger.Warn("result file missing", "task_id", id, "error", err)
		return "", ErrResultMissing
	}

	return task.OutputPath, nil
}

// DeleteTask removes the registry record first, so a pipeline that is still
// running can no longer write to it, then stops the pipeline and deletes the
// result and any remaining upload.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id uuid.UUID) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		return NewTaskServiceError("delete_task", "failed to remove task", err)
	}

	logger := s.logger.With("task_id", id)

	event, err := events.NewTaskDeletedEvent(id)
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		// The record is already gone; the pipeline notices on its next update.
		logger.Warn("failed to announce task deletion", "error", err)
	}

	s.removeFile(logger, s.archives.OutputPath(id))
	for _, path := range s.archives.UploadPaths(id) {
		s.removeFile(logger, path)
	}

	logger.Info("task deleted", "status", task.Status)
	return nil
}

func (s *taskServiceImpl) removeFile(logger *slog.Logger, path string) {
	if err := s.archives.Delete(path); err != nil {
		logger.Warn("failed to remove file", "path", path, "error", err)
	}
}
