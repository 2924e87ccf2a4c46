package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRollup recomputes the cached per-day audit activity rollup.
	TaskAuditRollup = "audit:rollup"
)

// AuditRollupPayload selects the window the rollup covers.
type AuditRollupPayload struct {
	Days int `json:"days"`
}

// NewAuditRollupTask constructs an Asynq task for the audit rollup.
func NewAuditRollupTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditRollupPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRollup, data), nil
}
