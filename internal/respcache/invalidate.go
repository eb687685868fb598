package respcache

import (
	"context"
	"strconv"
)

// Invalidator is the handle mutating handlers use to drop the cached
// reads they could have staled. The cache cannot track which writes
// affect which reads; calling this after every mutation is a contract
// each handler upholds.
type Invalidator struct {
	store Store
}

// NewInvalidator constructs an Invalidator.
func NewInvalidator(store Store) Invalidator {
	return Invalidator{store: store}
}

// Route drops every cached read under the route prefix, across all
// tenants and roles. For writes whose tenant scope is ambiguous.
func (i Invalidator) Route(ctx context.Context, prefix string) int {
	if i.store == nil {
		return 0
	}
	return i.store.DeletePattern(ctx, prefix+"*")
}

// RouteUnscoped drops cached reads under the route prefix whose tenant
// token is "all" (superadmin views without a tenant filter). Scoped
// writes stale those views too.
func (i Invalidator) RouteUnscoped(ctx context.Context, prefix string) int {
	if i.store == nil {
		return 0
	}
	return i.store.DeletePattern(ctx, prefix+"*:all:*")
}

// RouteForTenant drops cached reads under the route prefix scoped to one
// tenant. The tenant segment is third in the key layout, so the pattern
// pins it between wildcards: <prefix>*:<tenant>:*.
func (i Invalidator) RouteForTenant(ctx context.Context, prefix string, tenantID int64) int {
	if i.store == nil {
		return 0
	}
	return i.store.DeletePattern(ctx, prefix+"*:"+strconv.FormatInt(tenantID, 10)+":*")
}
