package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/archive"
	"github.com/phrazzld/ortho-api/internal/platform/webodm"
)

// Failure messages recorded on tasks.
const (
	MessageNoImages       = "No images found"
	MessageRemoteFailed   = "Processing failed"
	MessageRemoteCanceled = "Task canceled"
	MessageDownloadFailed = "Download failed"
	MessageTimedOut       = "Processing timed out"
	MessageInterrupted    = "Processing interrupted"
)

// ErrManagerStopped is returned by Launch once Stop has been called.
var ErrManagerStopped = errors.New("task manager is stopped")

// ArchiveStore is the file handling a pipeline needs.
// Version: 1.0
type ArchiveStore interface {
	// Extract unpacks the archive into the task's scratch directory.
	Extract(ctx context.Context, id uuid.UUID, archivePath string) (string, error)

	// DiscoverImages finds the images to submit below root.
	DiscoverImages(root string) (archive.ImageSet, error)

	// OutputPath is where the result archive for the task is written.
	OutputPath(id uuid.UUID) string

	// ScratchDir is the task's extraction directory.
	ScratchDir(id uuid.UUID) string

	// Delete removes a file or directory; a missing path is not an error.
	Delete(path string) error
}

// RemoteClient is the remote photogrammetry service.
// Version: 1.0
type RemoteClient interface {
	// Submit creates a remote task from images and returns its ID.
	Submit(ctx context.Context, images []string, name string) (string, error)

	// Poll reads the remote task status; false means no answer this time.
	Poll(ctx context.Context, remoteID string) (webodm.TaskInfo, bool)

	// Fetch downloads the result archive to dest.
	Fetch(ctx context.Context, remoteID, dest string) error
}

// failure carries the message recorded on the task alongside its cause.
type failure struct {
	message string
	cause   error
}

func (f *failure) Error() string { return f.message }

func (f *failure) Unwrap() error { return f.cause }

// errTaskGone means the task was removed from the registry mid-run.
var errTaskGone = errors.New("task no longer registered")
