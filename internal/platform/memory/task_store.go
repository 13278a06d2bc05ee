package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/phrazzld/ortho-api/internal/platform/logger"
	"github.com/phrazzld/ortho-api/internal/store"
)

// TaskStore implements store.TaskStore with a mutex-guarded map. Callers only
// ever see copies of the stored tasks.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// Compile-time check to ensure TaskStore implements store.TaskStore
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty TaskStore
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Create inserts a copy of task into the registry.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}
	s.tasks[task.ID] = task.Clone()

	logger.FromContextOrDefault(ctx, slog.Default()).Debug("task stored",
		"task_id", task.ID,
		"status", task.Status)
	return nil
}

// Get returns a copy of the task with the given ID.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List returns copies of every task ordered by creation time.
func (s *TaskStore) List(ctx context.Context) ([]*domain.Task, error) {
	s.mu.RLock()
	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID.String() < tasks[j].ID.String()
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Update runs fn against a working copy of the task under the write lock and
// stores the result only if fn succeeds and the task still validates.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, fn store.TaskMutator) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, store.NewStoreError("task", "update", "mutation rejected",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, err))
	}
	if err := working.Validate(); err != nil {
		return nil, store.NewStoreError("task", "update", "invalid result",
			fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
	}
	if working.UpdatedAt.Before(current.UpdatedAt) {
		working.UpdatedAt = time.Now().UTC()
	}

	s.tasks[id] = working
	return working.Clone(), nil
}

// Delete removes the task with the given ID.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}
