package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/hemodash/hemodash/internal/jobs"
	"github.com/hemodash/hemodash/internal/source"
)

// Submitter posts write requests to the backend.
type Submitter interface {
	Submit(ctx context.Context, payload source.Payload) error
}

// SyncEnqueuer schedules a follow-up sync.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, force bool, delay time.Duration) error
}

// RecordJob handles TaskRecordSubmit: it posts the record and schedules a
// sync once the backend has had time to publish it.
type RecordJob struct {
	Backend     Submitter
	Enqueuer    SyncEnqueuer
	SettleDelay time.Duration
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	validate    *validator.Validate
}

// NewRecordJob wires the submission handler.
func NewRecordJob(backend Submitter, enqueuer SyncEnqueuer, settleDelay time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecordJob {
	return &RecordJob{
		Backend:     backend,
		Enqueuer:    enqueuer,
		SettleDelay: settleDelay,
		Logger:      logger,
		Metrics:     metrics,
		validate:    validator.New(),
	}
}

// Handle processes record submission tasks.
func (j *RecordJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Backend == nil {
		return errors.New("record submit: handler not configured")
	}
	var payload RecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if j.validate == nil {
		j.validate = validator.New()
	}
	if err := j.validate.Struct(payload.Record); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	tracker := j.Metrics.Track(TaskRecordSubmit)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("site", payload.Record.Code),
		slog.String("date", payload.Record.Date),
		slog.String("idempotency_key", payload.IdempotencyKey),
	)

	err := j.Backend.Submit(ctx, payload.Record)
	if errors.Is(err, source.ErrBackendDisabled) {
		logger.Warn("record dropped, backend disabled")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err != nil {
		logger.Error("submit record", slog.Any("error", err))
		return err
	}
	logger.Info("record submitted")

	if j.Enqueuer != nil {
		if err := j.Enqueuer.EnqueueSync(ctx, false, j.SettleDelay); err != nil {
			logger.Warn("schedule follow-up sync", slog.Any("error", err))
		}
	}
	return nil
}

func (j *RecordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
