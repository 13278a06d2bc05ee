package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of an orthomosaic task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued      TaskStatus = "queued"
	TaskStatusExtracting  TaskStatus = "extracting"
	TaskStatusUploading   TaskStatus = "uploading"
	TaskStatusProcessing  TaskStatus = "processing"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
)

// Messages written on the happy path.
const (
	MessageQueued      = "Task queued"
	MessageExtracting  = "Extracting images..."
	MessageProcessing  = "Processing orthomosaic..."
	MessageDownloading = "Downloading results..."
	MessageCompleted   = "Complete!"
)

// IsTerminal reports whether no further transitions can happen from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusExtracting, TaskStatusUploading, TaskStatusProcessing,
		TaskStatusDownloading, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// transitions lists the forward edges of the task pipeline. Any non-terminal
// state may additionally move to failed.
var transitions = map[TaskStatus]TaskStatus{
	TaskStatusQueued:      TaskStatusExtracting,
	TaskStatusExtracting:  TaskStatusUploading,
	TaskStatusUploading:   TaskStatusProcessing,
	TaskStatusProcessing:  TaskStatusDownloading,
	TaskStatusDownloading: TaskStatusCompleted,
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == TaskStatusFailed {
		return true
	}
	return transitions[from] == to
}

// ArchiveFormat identifies the container type of an uploaded image archive.
type ArchiveFormat string

// Supported archive formats
const (
	ArchiveFormatZip ArchiveFormat = "zip"
	ArchiveFormatRar ArchiveFormat = "rar"
)

// ArchiveFormats lists every accepted format.
var ArchiveFormats = []ArchiveFormat{ArchiveFormatZip, ArchiveFormatRar}

// Extension returns the file extension for the format, including the dot.
func (f ArchiveFormat) Extension() string {
	return "." + string(f)
}

// ArchiveFormatFromFilename derives the archive format from a filename's
// extension, case-insensitively.
func ArchiveFormatFromFilename(name string) (ArchiveFormat, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, f := range ArchiveFormats {
		if ext == string(f) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedArchive, filepath.Ext(name))
}

// Task is one end-to-end request to turn an uploaded image archive into an
// orthomosaic. Only its own lifecycle manager mutates a task once it is queued.
type Task struct {
	ID               uuid.UUID  `json:"task_id"`
	Status           TaskStatus `json:"status"`
	Progress         int        `json:"progress"`
	Message          string     `json:"message"`
	OriginalFilename string     `json:"filename"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// RemoteTaskID is assigned by the remote service once the images are accepted
	RemoteTaskID string `json:"remote_task_id,omitempty"`

	// OutputPath is set only when Status is completed
	OutputPath string `json:"-"`
}

// NewTask creates a queued Task for the given upload name.
// It generates a new UUID for the task ID and sets the creation timestamps.
func NewTask(filename string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:               uuid.New(),
		Status:           TaskStatusQueued,
		Message:          MessageQueued,
		OriginalFilename: filename,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if (t.OutputPath != "") != (t.Status == TaskStatusCompleted) {
		return fmt.Errorf("%w: output path must be set exactly when completed", ErrValidation)
	}
	return nil
}

// Clone returns an independent copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

func (t *Task) moveTo(to TaskStatus, message string) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.Message = message
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Start moves a queued task into extraction.
func (t *Task) Start() error {
	return t.moveTo(TaskStatusExtracting, MessageExtracting)
}

// BeginUpload records that extraction finished and imageCount images are being sent.
func (t *Task) BeginUpload(imageCount int) error {
	return t.moveTo(TaskStatusUploading, fmt.Sprintf("Uploading %d images...", imageCount))
}

// BeginProcessing records the remote identifier and enters the polling state.
func (t *Task) BeginProcessing(remoteTaskID string) error {
	if remoteTaskID == "" {
		return fmt.Errorf("%w: remote task ID cannot be empty", ErrValidation)
	}
	if err := t.moveTo(TaskStatusProcessing, MessageProcessing); err != nil {
		return err
	}
	t.RemoteTaskID = remoteTaskID
	return nil
}

// UpdateProgress applies a remote progress reading. Progress never decreases
// and is clamped to [0, 100].
func (t *Task) UpdateProgress(progress int) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: progress update while %s", ErrInvalidTransition, t.Status)
	}
	if progress > 100 {
		progress = 100
	}
	if progress > t.Progress {
		t.Progress = progress
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// BeginDownload records that the remote service finished processing.
func (t *Task) BeginDownload() error {
	return t.moveTo(TaskStatusDownloading, MessageDownloading)
}

// Complete records the downloaded result location.
func (t *Task) Complete(outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("%w: output path cannot be empty", ErrValidation)
	}
	if err := t.moveTo(TaskStatusCompleted, MessageCompleted); err != nil {
		return err
	}
	t.Progress = 100
	t.OutputPath = outputPath
	return nil
}

// Fail moves the task to the failed terminal state with a descriptive message.
func (t *Task) Fail(message string) error {
	if err := t.moveTo(TaskStatusFailed, message); err != nil {
		return err
	}
	t.OutputPath = ""
	return nil
}
