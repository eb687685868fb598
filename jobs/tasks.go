package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/stocktide/stocktide/internal/audit"
	jobmetrics "github.com/stocktide/stocktide/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists one audit event.
	TaskAuditRecord = "audit:record"
)

// NewAuditRecordTask constructs an Asynq task carrying one audit event.
func NewAuditRecordTask(ev audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// Inserter persists audit events synchronously so failed tasks retry.
type Inserter interface {
	Insert(ctx context.Context, ev audit.Event) error
}

// NewAuditRecordHandler returns the handler for TaskAuditRecord tasks.
// An undecodable payload is dropped rather than retried.
func NewAuditRecordHandler(ins Inserter, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("audit_record")
		var ev audit.Event
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		return tracker.End(ins.Insert(ctx, ev))
	}
}
