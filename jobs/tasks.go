package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hemodash/hemodash/internal/source"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardSync refreshes the dashboard from the source export.
	TaskDashboardSync = "dashboard:sync"
	// TaskRecordSubmit forwards a collection record to the backend.
	TaskRecordSubmit = "records:submit"
)

// SyncPayload parameterises a dashboard sync task.
type SyncPayload struct {
	Force bool `json:"force"`
}

// RecordPayload carries a record accepted by the API.
type RecordPayload struct {
	Record         source.Record `json:"record"`
	IdempotencyKey string        `json:"idempotencyKey"`
	ActorID        int64         `json:"actorId"`
	AcceptedAt     time.Time     `json:"acceptedAt"`
}

// NewSyncTask constructs a dashboard sync task.
func NewSyncTask(force bool) (*asynq.Task, error) {
	data, err := json.Marshal(SyncPayload{Force: force})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardSync, data), nil
}

// NewRecordTask constructs a record submission task.
func NewRecordTask(payload RecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecordSubmit, data), nil
}
