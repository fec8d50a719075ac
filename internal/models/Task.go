package models

// TaskStatusRunning is the status string PBS reports for in-flight tasks.
const TaskStatusRunning = "running"

// Task describes one server task, as returned by the
// /nodes/localhost/tasks endpoint.
type Task struct {
	// UPID is the unique process identifier.
	UPID string `json:"upid"`
	// WorkerType is "backup", "verify", "prune", "sync", "garbage_collection", ...
	WorkerType string `json:"worker_type"`
	// WorkerID has the form "datastore:type/id" and joins a task to its
	// originating backup group.
	WorkerID *string `json:"worker_id,omitempty"`
	// StartTime is the unix timestamp when the task started.
	StartTime int64 `json:"starttime"`
	// EndTime is the unix timestamp when the task finished; nil while the
	// task is still running.
	EndTime *int64 `json:"endtime,omitempty"`
	// Status is the task result string ("OK", error text, "running", ...).
	Status *string `json:"status,omitempty"`
	// Comment attached to the task, if any.
	Comment *string `json:"comment,omitempty"`
}

// IsRunning reports whether the task is still in flight: either no end time
// has been recorded yet, or the status literal is "running".
func (t *Task) IsRunning() bool {
	return t.EndTime == nil || (t.Status != nil && *t.Status == TaskStatusRunning)
}

// Duration returns end time minus start time in seconds for finished tasks.
// The value is passed through unclamped: a negative duration surfaces a
// backend clock anomaly instead of hiding it.
func (t *Task) Duration() int64 {
	if t.EndTime == nil {
		return 0
	}
	return *t.EndTime - t.StartTime
}

// TasksResponse is the API envelope for the tasks endpoint.
type TasksResponse struct {
	Data []Task `json:"data"`
}
