package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/domain"
)

// TaskMutator applies in-place changes to a stored task. Returning an error
// aborts the update and leaves the stored task unchanged.
type TaskMutator func(task *domain.Task) error

// TaskStore defines the interface for the task registry, the single source of
// truth for task status visible to callers.
// Version: 1.0
type TaskStore interface {
	// Create inserts a new task.
	// Returns validation errors from the domain Task if data is invalid.
	// Returns ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a copy of the task with the given ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns copies of all known tasks, oldest first.
	List(ctx context.Context) ([]*domain.Task, error)

	// Update applies fn to the stored task atomically with respect to other
	// registry operations and returns a copy of the result.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, id uuid.UUID, fn TaskMutator) (*domain.Task, error)

	// Delete removes a task.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
