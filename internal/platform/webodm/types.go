package webodm

// Remote task status codes. Only failed, completed and canceled are acted on;
// every other code means the task is still in progress.
const (
	StatusQueued    = 10
	StatusRunning   = 20
	StatusFailed    = 30
	StatusCompleted = 40
	StatusCanceled  = 50
)

// TaskInfo is the subset of the remote task description used for polling.
type TaskInfo struct {
	StatusCode int
	Progress   float64
}

// option is one entry of the processing options list sent with a new task.
type option struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

type newTaskResponse struct {
	UUID  string `json:"uuid"`
	Error string `json:"error,omitempty"`
}

type taskInfoResponse struct {
	Status struct {
		Code int `json:"code"`
	} `json:"status"`
	Progress float64 `json:"progress"`
}
