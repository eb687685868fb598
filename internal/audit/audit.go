// Package audit defines the append-only audit trail consumed by the
// trust-boundary layer and by mutating handlers.
package audit

import (
	"context"
	"time"
)

// Actions recorded by the platform. Isolation violations are the ones the
// boundary emits on its own; the rest come from mutating handlers.
const (
	ActionTenantIsolationViolation = "TENANT_ISOLATION_VIOLATION"
	ActionShopAccessViolation      = "SHOP_ACCESS_VIOLATION"

	ActionItemCreated = "ITEM_CREATED"
	ActionItemUpdated = "ITEM_UPDATED"
	ActionItemDeleted = "ITEM_DELETED"
)

// Event is a single audit trail entry.
type Event struct {
	ID         string         `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Table      string         `json:"table"`
	ResourceID int64          `json:"resource_id"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// Sink accepts audit events best-effort. Implementations must swallow
// their own failures: recording is fire-and-forget and must never leak
// an error into the request path.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) {}
