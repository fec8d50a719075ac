package exporter

import (
	"github.com/pbsmon/pbs_exporter/internal/models"
	"github.com/pbsmon/pbs_exporter/internal/utils"
)

// projectTasks populates the four task gauge families from one fetched task
// window. taskComments is the cross-datastore comment map built during
// snapshot projection, consulted for tasks whose own comment is empty.
//
// Tasks are processed in the order the backend returned them; for finished
// tasks of the same worker type the last end time processed wins the
// last-run timestamp.
func (r *PbsRegistry) projectTasks(tasks []models.Task, taskComments map[string]string) {
	for _, task := range tasks {
		comment := utils.TruncateLabel(resolveTaskComment(task, taskComments))

		status := labelUnknown
		if task.Status != nil {
			status = *task.Status
		}
		r.taskTotal.WithLabelValues(task.WorkerType, status, comment).Inc()

		if task.IsRunning() {
			r.taskRunning.WithLabelValues(task.WorkerType, comment).Inc()
			continue
		}

		workerID := labelUnknown
		if task.WorkerID != nil {
			workerID = *task.WorkerID
		}
		// Negative durations are emitted as-is so backend clock anomalies
		// stay visible instead of being clamped away.
		r.taskDurationSeconds.WithLabelValues(
			task.WorkerType, status, workerID, comment,
		).Set(float64(task.Duration()))
		r.taskLastRunTimestamp.WithLabelValues(task.WorkerType).Set(float64(*task.EndTime))
	}
}

// resolveTaskComment prefers the task's own comment; an absent or empty
// comment falls back to the snapshot-derived comment for the task's
// worker ID, then to "".
func resolveTaskComment(task models.Task, taskComments map[string]string) string {
	if task.Comment != nil && *task.Comment != "" {
		return *task.Comment
	}
	if task.WorkerID != nil {
		if comment, ok := taskComments[*task.WorkerID]; ok {
			return comment
		}
	}
	return ""
}
