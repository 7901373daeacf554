package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue name used for background work.
	QueueDefault = "default"
	// TaskTypeExport generates a requested collection export.
	TaskTypeExport = "export:generate"
	// TaskTypeExportCleanup prunes expired export files.
	TaskTypeExportCleanup = "export:cleanup"
)

// ExportPayload identifies the job row the worker should process.
type ExportPayload struct {
	JobID string `json:"job_id"`
}

// NewExportTask constructs the asynq task for an export job.
func NewExportTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(ExportPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeExport, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewExportCleanupTask constructs the periodic cleanup task.
func NewExportCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeExportCleanup, nil, asynq.Queue(QueueDefault))
}
