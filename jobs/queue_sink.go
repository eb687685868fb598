package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stocktide/stocktide/internal/audit"
)

// QueueSink ships audit events through the job queue instead of writing
// them inline. Enqueue failures are logged and dropped so the request
// path never blocks on the broker.
type QueueSink struct {
	client *Client
	logger *slog.Logger
}

// NewQueueSink constructs a queue-backed audit sink.
func NewQueueSink(client *Client, logger *slog.Logger) *QueueSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueSink{client: client, logger: logger}
}

// Record enqueues the event. It never fails the caller.
func (s *QueueSink) Record(ctx context.Context, ev audit.Event) {
	task, err := NewAuditRecordTask(ev)
	if err != nil {
		s.logger.Error("audit task encode", slog.Any("error", err))
		return
	}
	if _, err := s.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		s.logger.Error("audit enqueue", slog.String("action", ev.Action), slog.Any("error", err))
	}
}
