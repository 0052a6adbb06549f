package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/syncer"
)

// Syncer runs one dashboard sync cycle.
type Syncer interface {
	Sync(ctx context.Context, force bool) (syncer.Outcome, error)
}

// SyncJob handles TaskDashboardSync.
type SyncJob struct {
	Syncer Syncer
	Logger *slog.Logger
}

// NewSyncJob wires the sync handler.
func NewSyncJob(s Syncer, logger *slog.Logger) *SyncJob {
	return &SyncJob{Syncer: s, Logger: logger}
}

// Handle runs a sync. A malformed source is not retried; the next scheduled
// run picks up any fix.
func (j *SyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("dashboard sync: handler not configured")
	}
	var payload SyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	outcome, err := j.Syncer.Sync(ctx, payload.Force)
	if errors.Is(err, ingest.ErrStructure) {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err != nil {
		return err
	}
	if outcome.Skipped {
		j.logger().Debug("dashboard sync skipped, another cycle running")
	}
	return nil
}

func (j *SyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
