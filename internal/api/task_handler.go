package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/ortho-api/internal/api/shared"
	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/phrazzld/ortho-api/internal/platform/logger"
	"github.com/phrazzld/ortho-api/internal/service"
)

const (
	uploadField    = "file"
	serviceName    = "WebODM Orthomosaic API"
	serviceVersion = "1.0.0"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskService    service.TaskService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService, maxUploadBytes int64, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		taskService:    taskService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "task_handler"),
	}
}

// Routes registers the task endpoints on r.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Get("/", h.ServiceInfo)
	r.Post("/upload", h.Upload)
	r.Get("/status/{task_id}", h.GetStatus)
	r.Get("/download/{task_id}", h.Download)
	r.Get("/tasks", h.ListTasks)
	r.Delete("/task/{task_id}", h.DeleteTask)
}

// ServiceInfo handles GET / requests
func (h *TaskHandler) ServiceInfo(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ServiceInfoResponse{
		Name:    serviceName,
		Version: serviceVersion,
		Docs:    "/docs",
	})
}

// Upload handles POST /upload requests. The archive is streamed from the
// multipart body straight to disk.
func (h *TaskHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Request must be multipart/form-data")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "No file uploaded")
			return
		}
		if err != nil {
			h.respondWithServiceError(w, r, fmt.Errorf("%w: malformed multipart body: %w", domain.ErrValidation, err))
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		req := UploadRequest{Filename: part.FileName()}
		if err := shared.ValidateRequest(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
			return
		}

		task, err := h.taskService.Submit(r.Context(), req.Filename, part)
		_ = part.Close()
		if err != nil {
			h.respondWithServiceError(w, r, err)
			return
		}

		log.Info("upload accepted", "task_id", task.ID, "filename", req.Filename)
		shared.RespondWithJSON(w, r, http.StatusAccepted, UploadResponse{
			TaskID:  task.ID.String(),
			Status:  string(task.Status),
			Message: fmt.Sprintf("Task created. Check /status/%s", task.ID),
		})
		return
	}
}

// GetStatus handles GET /status/{task_id} requests
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToStatusResponse(task))
}

// Download handles GET /download/{task_id} requests
func (h *TaskHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	path, err := h.taskService.ResultFile(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.respondWithServiceError(w, r, service.ErrResultMissing)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	name := fmt.Sprintf("orthomosaic_%s.zip", id)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// ListTasks handles GET /tasks requests
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListTasks(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	response := TaskListResponse{
		Total: len(tasks),
		Tasks: make([]TaskResponse, 0, len(tasks)),
	}
	for _, task := range tasks {
		response.Tasks = append(response.Tasks, taskToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// DeleteTask handles DELETE /task/{task_id} requests
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), id); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{Message: "Task deleted"})
}

func (h *TaskHandler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
