package api

import (
	"time"

	"github.com/phrazzld/ortho-api/internal/domain"
)

// UploadRequest holds the parts of an upload that are checked before the body is read.
type UploadRequest struct {
	Filename string `validate:"required,max=255,excludesall=/\\"`
}

// UploadResponse is returned when an archive was accepted.
type UploadResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse describes one task's progress.
type StatusResponse struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	DownloadURL string `json:"download_url,omitempty"`
}

// TaskResponse is the listing representation of a task.
type TaskResponse struct {
	TaskID       string    `json:"task_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Message      string    `json:"message"`
	Filename     string    `json:"filename"`
	RemoteTaskID string    `json:"remote_task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TaskListResponse wraps the task listing.
type TaskListResponse struct {
	Total int            `json:"total"`
	Tasks []TaskResponse `json:"tasks"`
}

// MessageResponse carries a single human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ServiceInfoResponse identifies the service at the root path.
type ServiceInfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// downloadURL is the result location for a completed task.
func downloadURL(task *domain.Task) string {
	if task.Status != domain.TaskStatusCompleted {
		return ""
	}
	return "/download/" + task.ID.String()
}

func taskToStatusResponse(task *domain.Task) StatusResponse {
	return StatusResponse{
		TaskID:      task.ID.String(),
		Status:      string(task.Status),
		Progress:    task.Progress,
		Message:     task.Message,
		DownloadURL: downloadURL(task),
	}
}

func taskToResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:       task.ID.String(),
		Status:       string(task.Status),
		Progress:     task.Progress,
		Message:      task.Message,
		Filename:     task.OriginalFilename,
		RemoteTaskID: task.RemoteTaskID,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}
}
