package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder persists audit events into audit_logs.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	return &Recorder{pool: pool, logger: logger}
}

// Insert writes the event synchronously, returning the error so queue
// consumers can retry. Missing ID and timestamp are filled in.
func (r *Recorder) Insert(ctx context.Context, ev Event) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	if ev.Action == "" {
		return errors.New("audit: action required")
	}
	ev = normalize(ev)
	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, entity, entity_id, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.ActorID, ev.Action, ev.Table, ev.ResourceID, detailJSON, ev.At)
	return err
}

// Record implements Sink. It runs the insert on a detached context so a
// cancelled request cannot abort it, and swallows any failure.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.pool == nil {
		return
	}
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := r.Insert(detached, ev); err != nil && r.logger != nil {
			r.logger.Warn("audit record dropped", slog.String("action", ev.Action), slog.Any("error", err))
		}
	}()
}

func normalize(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
