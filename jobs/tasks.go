package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/mdm-console/mdm-console/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPruneAssignments removes role assignments whose permission was deleted.
	TaskPruneAssignments = "rbac:prune_assignments"
	// TaskAuditRecord writes one audit log entry.
	TaskAuditRecord = "audit:record"
)

// PruneAssignmentsPayload names the permission whose deletion triggered the prune.
// Zero means a scheduled sweep.
type PruneAssignmentsPayload struct {
	PermissionID int64 `json:"permission_id"`
}

// NewPruneAssignmentsTask constructs an Asynq task.
func NewPruneAssignmentsTask(permissionID int64) (*asynq.Task, error) {
	data, err := json.Marshal(PruneAssignmentsPayload{PermissionID: permissionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPruneAssignments, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewAuditRecordTask wraps an audit entry into a task.
func NewAuditRecordTask(entry shared.AuditLog) (*asynq.Task, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.Queue(QueueDefault), asynq.MaxRetry(10)), nil
}
