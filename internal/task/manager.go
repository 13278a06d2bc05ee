package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/phrazzld/ortho-api/internal/platform/webodm"
	"github.com/phrazzld/ortho-api/internal/redact"
	"github.com/phrazzld/ortho-api/internal/store"
	"golang.org/x/sync/semaphore"
)

// Manager runs one background pipeline per launched task.
type Manager struct {
	store    store.TaskStore
	archives ArchiveStore
	remote   RemoteClient
	config   config.TaskConfig
	logger   *slog.Logger

	// slots bounds concurrent pipelines; nil when unbounded
	slots *semaphore.Weighted

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	stopped bool
}

// NewManager creates a Manager. Pipelines start only when Launch is called.
func NewManager(
	taskStore store.TaskStore,
	archives ArchiveStore,
	remote RemoteClient,
	cfg config.TaskConfig,
	logger *slog.Logger,
) (*Manager, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if archives == nil {
		return nil, errors.New("archive store cannot be nil")
	}
	if remote == nil {
		return nil, errors.New("remote client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		store:      taskStore,
		archives:   archives,
		remote:     remote,
		config:     cfg,
		logger:     logger.With("component", "task_manager"),
		ctx:        ctx,
		cancelFunc: cancel,
		running:    make(map[uuid.UUID]context.CancelFunc),
	}
	if cfg.MaxConcurrent > 0 {
		m.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return m, nil
}

// Launch starts the pipeline for a queued task whose upload is at archivePath.
func (m *Manager) Launch(id uuid.UUID, archivePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}
	if _, exists := m.running[id]; exists {
		return fmt.Errorf("task %s is already running", id)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.running[id] = cancel
	m.wg.Add(1)
	go m.run(ctx, id, archivePath)

	m.logger.Debug("pipeline launched", "task_id", id)
	return nil
}

// Cancel stops the pipeline of a task if one is running and reports whether it was.
// The pipeline still cleans up its scratch files before exiting.
func (m *Manager) Cancel(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.running[id]
	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of pipelines that have not finished.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Stop cancels every pipeline and waits for them to exit. Interrupted tasks
// are marked failed.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.cancelFunc()
	m.wg.Wait()
	m.logger.Info("task manager stopped")
}

func (m *Manager) forget(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.running[id]; ok {
		cancel()
		delete(m.running, id)
	}
}

// run is the per-task goroutine. Whatever happens inside, the task ends in a
// terminal state (unless it was deleted) and its scratch files are removed.
func (m *Manager) run(ctx context.Context, id uuid.UUID, archivePath string) {
	defer m.wg.Done()
	defer m.forget(id)

	logger := m.logger.With("task_id", id)

	defer m.cleanup(logger, id, archivePath)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked", "panic", r)
			m.fail(logger, id, fmt.Sprint(r))
		}
	}()

	if m.slots != nil {
		if err := m.slots.Acquire(ctx, 1); err != nil {
			m.fail(logger, id, MessageInterrupted)
			return
		}
		defer m.slots.Release(1)
	}

	err := m.execute(ctx, logger, id, archivePath)
	switch {
	case err == nil:
		logger.Info("task completed")
	case errors.Is(err, errTaskGone):
		logger.Info("task deleted while running, stopping")
	case ctx.Err() != nil:
		logger.Warn("pipeline interrupted", "error", redact.Error(err))
		m.fail(logger, id, MessageInterrupted)
	default:
		logger.Error("task failed", "error", redact.Error(err))
		m.fail(logger, id, err.Error())
	}
}

// execute walks the task through every stage and returns the reason it
// stopped early, if it did.
func (m *Manager) execute(ctx context.Context, logger *slog.Logger, id uuid.UUID, archivePath string) error {
	if _, err := m.update(ctx, id, func(t *domain.Task) error { return t.Start() }); err != nil {
		return err
	}

	dir, err := m.archives.Extract(ctx, id, archivePath)
	if err != nil {
		return err
	}

	images, err := m.archives.DiscoverImages(dir)
	if err != nil {
		return &failure{message: MessageNoImages, cause: err}
	}
	if images.Len() == 0 {
		return &failure{message: MessageNoImages}
	}
	logger.Info("images discovered", "count", images.Len(), "dir", images.Dir)

	if _, err := m.update(ctx, id, func(t *domain.Task) error { return t.BeginUpload(images.Len()) }); err != nil {
		return err
	}

	remoteID, err := m.remote.Submit(ctx, images.Paths, remoteTaskName(id))
	if err != nil {
		return err
	}
	logger = logger.With("remote_task_id", remoteID)

	if _, err := m.update(ctx, id, func(t *domain.Task) error { return t.BeginProcessing(remoteID) }); err != nil {
		return err
	}

	if err := m.poll(ctx, logger, id, remoteID); err != nil {
		return err
	}

	if _, err := m.update(ctx, id, func(t *domain.Task) error { return t.BeginDownload() }); err != nil {
		return err
	}

	output := m.archives.OutputPath(id)
	if err := m.remote.Fetch(ctx, remoteID, output); err != nil {
		return &failure{message: MessageDownloadFailed, cause: err}
	}

	if _, err := m.update(ctx, id, func(t *domain.Task) error { return t.Complete(output) }); err != nil {
		// The result has no owner any more.
		if delErr := m.archives.Delete(output); delErr != nil {
			logger.Warn("failed to remove orphaned result", "error", redact.Error(delErr))
		}
		return err
	}
	return nil
}

// poll queries the remote service until it reports a final status.
func (m *Manager) poll(ctx context.Context, logger *slog.Logger, id uuid.UUID, remoteID string) error {
	var deadline <-chan time.Time
	if m.config.PollTimeout > 0 {
		timeout := time.NewTimer(m.config.PollTimeout)
		defer timeout.Stop()
		deadline = timeout.C
	}

	interval := time.NewTimer(m.config.PollInterval)
	defer interval.Stop()

	for {
		info, ok := m.remote.Poll(ctx, remoteID)
		if ok {
			switch info.StatusCode {
			case webodm.StatusCompleted:
				logger.Info("remote processing completed")
				return nil
			case webodm.StatusFailed:
				return &failure{message: MessageRemoteFailed}
			case webodm.StatusCanceled:
				return &failure{message: MessageRemoteCanceled}
			default:
				progress := int(info.Progress)
				if _, err := m.update(ctx, id, func(t *domain.Task) error { return t.UpdateProgress(progress) }); err != nil {
					return err
				}
				logger.Debug("remote progress", "status_code", info.StatusCode, "progress", progress)
			}
		}

		interval.Reset(m.config.PollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return &failure{message: MessageTimedOut}
		case <-interval.C:
		}
	}
}

// update applies fn to the registry record. A deleted record yields errTaskGone.
func (m *Manager) update(ctx context.Context, id uuid.UUID, fn store.TaskMutator) (*domain.Task, error) {
	task, err := m.store.Update(ctx, id, fn)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, errTaskGone
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// fail records message as the failure reason unless the task already ended
// or no longer exists.
func (m *Manager) fail(logger *slog.Logger, id uuid.UUID, message string) {
	_, err := m.store.Update(context.Background(), id, func(t *domain.Task) error {
		return t.Fail(message)
	})
	switch {
	case err == nil:
	case store.IsNotFoundError(err):
		logger.Debug("task removed before failure could be recorded")
	default:
		logger.Warn("failed to record task failure", "error", err)
	}
}

func (m *Manager) cleanup(logger *slog.Logger, id uuid.UUID, archivePath string) {
	for _, path := range []string{m.archives.ScratchDir(id), archivePath} {
		if err := m.archives.Delete(path); err != nil {
			logger.Warn("cleanup failed", "error", redact.Error(err))
		}
	}
}

// remoteTaskName is the name given to the remote task, so it can be traced
// back to the local task ID.
func remoteTaskName(id uuid.UUID) string {
	return "Task-" + id.String()
}
