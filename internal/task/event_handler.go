package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/events"
)

// Launcher is the part of Manager driven by task events.
type Launcher interface {
	Launch(id uuid.UUID, archivePath string) error
	Cancel(id uuid.UUID) bool
}

// EventHandler starts and stops pipelines in response to task events.
type EventHandler struct {
	launcher Launcher
	logger   *slog.Logger
}

// Compile-time checks
var (
	_ events.EventHandler = (*EventHandler)(nil)
	_ Launcher            = (*Manager)(nil)
)

// NewEventHandler creates an EventHandler that forwards to launcher.
func NewEventHandler(launcher Launcher, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		launcher: launcher,
		logger:   logger.With("component", "task_event_handler"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *EventHandler) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	switch event.Type {
	case events.TaskSubmitted:
		if err := h.launcher.Launch(event.TaskID, event.ArchivePath); err != nil {
			return fmt.Errorf("failed to launch task %s: %w", event.TaskID, err)
		}
	case events.TaskDeleted:
		if h.launcher.Cancel(event.TaskID) {
			h.logger.Info("cancelled running task", "task_id", event.TaskID)
		}
	default:
		h.logger.Debug("ignoring event", "event_type", event.Type, "event_id", event.ID)
	}
	return nil
}
