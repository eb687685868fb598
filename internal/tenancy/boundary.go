package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stocktide/stocktide/internal/audit"
)

// Sentinel errors surfaced by boundary decisions. Lookup failure is its
// own class so callers never conflate "resource doesn't exist" with "we
// couldn't check", and it is never treated as an implicit allow or deny.
var (
	ErrAuthenticationRequired = errors.New("tenancy: authentication required")
	ErrAccessDenied           = errors.New("tenancy: access denied")
	ErrNotFound               = errors.New("tenancy: resource not found")
	ErrLookupFailed           = errors.New("tenancy: owner lookup failed")
)

// TenantLookup resolves the owning tenant of a resource. A nil tenant id
// marks a global/shared row. Implementations return ErrNotFound when the
// row does not exist.
type TenantLookup interface {
	OwningTenant(ctx context.Context, table string, id int64) (*int64, error)
}

// Boundary decides, before any handler logic runs, whether a principal
// may touch a tenant-scoped resource or mutation.
type Boundary struct {
	lookup TenantLookup
	sink   audit.Sink
	logger *slog.Logger
}

// NewBoundary constructs a Boundary. A nil sink disables audit emission.
func NewBoundary(lookup TenantLookup, sink audit.Sink, logger *slog.Logger) *Boundary {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Boundary{lookup: lookup, sink: sink, logger: logger}
}

// AuthorizeResourceAccess gates read access to a single resource.
// Superadmins see everything unless they selected an explicit tenant
// filter, in which case the resource must belong to that tenant. Everyone
// else must match the resource's owning tenant exactly; a mismatch is
// denied and audited as an isolation violation.
func (b *Boundary) AuthorizeResourceAccess(ctx context.Context, p *Principal, table string, id int64, explicitTenantFilter *int64) error {
	if p == nil {
		return ErrAuthenticationRequired
	}

	if p.Role == RoleSuperadmin {
		if explicitTenantFilter == nil {
			return nil
		}
		owner, err := b.owningTenant(ctx, table, id)
		if err != nil {
			return err
		}
		if owner == nil || *owner != *explicitTenantFilter {
			return fmt.Errorf("%w: resource does not belong to selected tenant", ErrAccessDenied)
		}
		return nil
	}

	if p.TenantID == nil {
		return fmt.Errorf("%w: principal is not assigned to any tenant", ErrAccessDenied)
	}

	owner, err := b.owningTenant(ctx, table, id)
	if err != nil {
		return err
	}
	if owner == nil {
		// Global/shared resource, visible to every tenant.
		return nil
	}
	if *owner != *p.TenantID {
		b.sink.Record(ctx, audit.Event{
			ActorID:    p.ID,
			Action:     audit.ActionTenantIsolationViolation,
			Table:      table,
			ResourceID: id,
			Detail: map[string]any{
				"attempted_tenant": *p.TenantID,
				"resource_tenant":  *owner,
			},
		})
		if b.logger != nil {
			b.logger.Warn("tenant isolation violation",
				slog.Int64("actor_id", p.ID),
				slog.String("table", table),
				slog.Int64("resource_id", id))
		}
		return fmt.Errorf("%w: resource belongs to another tenant", ErrAccessDenied)
	}
	return nil
}

// ValidateAndScopeTenant gates a tenant-scoped mutation. Superadmins may
// write under any tenant, including none. Everyone else may only write
// under their own tenant; an absent proposed tenant is auto-filled with
// the principal's, and a mismatching one is denied and audited.
func (b *Boundary) ValidateAndScopeTenant(ctx context.Context, p *Principal, proposed *int64) (*int64, error) {
	if p == nil {
		return nil, ErrAuthenticationRequired
	}
	if p.Role == RoleSuperadmin {
		return proposed, nil
	}
	if p.TenantID == nil {
		return nil, fmt.Errorf("%w: principal is not assigned to any tenant", ErrAccessDenied)
	}
	if proposed != nil && *proposed != *p.TenantID {
		b.sink.Record(ctx, audit.Event{
			ActorID: p.ID,
			Action:  audit.ActionShopAccessViolation,
			Detail: map[string]any{
				"principal_tenant": *p.TenantID,
				"proposed_tenant":  *proposed,
			},
		})
		return nil, fmt.Errorf("%w: cannot write into another tenant", ErrAccessDenied)
	}
	scoped := *p.TenantID
	return &scoped, nil
}

func (b *Boundary) owningTenant(ctx context.Context, table string, id int64) (*int64, error) {
	owner, err := b.lookup.OwningTenant(ctx, table, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return owner, nil
}
