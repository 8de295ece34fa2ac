package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sankofa-mutual/sankofa/internal/jobs"
	"github.com/sankofa-mutual/sankofa/internal/shared"
)

// GuardCleanupJob reaps settlement guard keys older than retention. Keys only
// matter while their wizard can still be replayed, which the wizard TTL bounds.
type GuardCleanupJob struct {
	Guard   *shared.SettlementGuard
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGuardCleanupJob initialises the cleanup handler.
func NewGuardCleanupJob(guard *shared.SettlementGuard, logger *slog.Logger, metrics *jobmetrics.Metrics) *GuardCleanupJob {
	return &GuardCleanupJob{Guard: guard, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *GuardCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Guard == nil {
		return errors.New("guard cleanup: handler not configured")
	}
	var payload GuardCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 7 * 24 * time.Hour
	}

	tracker := j.Metrics.Track(TaskTypeGuardCleanup)
	removed, err := j.Guard.Cleanup(ctx, payload.Retention)
	if err != nil {
		j.Logger.Error("guard cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("guard cleanup done", slog.Int64("removed", removed))
	return tracker.End(nil)
}
