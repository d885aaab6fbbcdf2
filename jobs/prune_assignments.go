package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mdm-console/mdm-console/internal/jobs"
)

// AssignmentPruner deletes assignments that reference missing permissions.
type AssignmentPruner interface {
	PruneDanglingAssignments(ctx context.Context) (int64, error)
}

// PruneAssignmentsJob handles TaskPruneAssignments.
type PruneAssignmentsJob struct {
	Pruner  AssignmentPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPruneAssignmentsJob initialises the prune handler.
func NewPruneAssignmentsJob(pruner AssignmentPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *PruneAssignmentsJob {
	return &PruneAssignmentsJob{Pruner: pruner, Logger: logger, Metrics: metrics}
}

// Handle runs one prune pass.
func (j *PruneAssignmentsJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Pruner == nil {
		return errors.New("prune assignments: handler not configured")
	}
	var payload PruneAssignmentsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskPruneAssignments)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("permission_id", payload.PermissionID))
	n, err := j.Pruner.PruneDanglingAssignments(ctx)
	if err != nil {
		logger.Error("prune assignments failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPruned(n)
	logger.Info("pruned assignments", slog.Int64("rows", n))
	return nil
}

func (j *PruneAssignmentsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
