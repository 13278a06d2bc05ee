package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/service"
)

// getPathTaskID extracts the task UUID from the URL path. An absent or
// malformed ID cannot name an existing task, so it is reported as not found.
func getPathTaskID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		return uuid.Nil, service.ErrTaskNotFound
	}
	return id, nil
}
