package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to a task.
type EventType string

// Known event types
const (
	// TaskSubmitted is emitted once a task is registered and its archive saved.
	TaskSubmitted EventType = "task_submitted"

	// TaskDeleted is emitted after a task is removed from the registry.
	TaskDeleted EventType = "task_deleted"
)

// ErrInvalidEvent is returned when an event is missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// TaskEvent announces a change in a task's lifecycle.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type   EventType `json:"type"`
	TaskID uuid.UUID `json:"task_id"`

	// ArchivePath is the saved upload; set for TaskSubmitted only
	ArchivePath string `json:"archive_path,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskSubmittedEvent creates the event that starts processing of a task.
func NewTaskSubmittedEvent(taskID uuid.UUID, archivePath string) (*TaskEvent, error) {
	if taskID == uuid.Nil {
		return nil, fmt.Errorf("%w: task ID cannot be empty", ErrInvalidEvent)
	}
	if archivePath == "" {
		return nil, fmt.Errorf("%w: archive path cannot be empty", ErrInvalidEvent)
	}
	return newTaskEvent(TaskSubmitted, taskID, archivePath), nil
}

// NewTaskDeletedEvent creates the event that stops any work on a task.
func NewTaskDeletedEvent(taskID uuid.UUID) (*TaskEvent, error) {
	if taskID == uuid.Nil {
		return nil, fmt.Errorf("%w: task ID cannot be empty", ErrInvalidEvent)
	}
	return newTaskEvent(TaskDeleted, taskID, ""), nil
}

func newTaskEvent(eventType EventType, taskID uuid.UUID, archivePath string) *TaskEvent {
	return &TaskEvent{
		ID:          uuid.New(),
		Type:        eventType,
		TaskID:      taskID,
		ArchivePath: archivePath,
		CreatedAt:   time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent delivers the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
