package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mdm-console/mdm-console/internal/jobs"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// AuditRecordJob writes queued audit entries through a synchronous recorder.
type AuditRecordJob struct {
	Recorder shared.AuditRecorder
	Metrics  *jobmetrics.Metrics
}

// Handle decodes and persists one entry. Malformed payloads are not retried.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Recorder == nil {
		return errors.New("audit record: handler not configured")
	}
	var entry shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("decode audit entry: %v: %w", err, asynq.SkipRetry)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAuditRecord)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	return j.Recorder.Record(ctx, entry)
}
