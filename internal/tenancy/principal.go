// Package tenancy enforces the tenant trust boundary: every request is
// checked against the owning tenant of the resource it touches before any
// handler or cache runs.
package tenancy

import (
	"context"
	"strconv"
)

// Role classifies a principal's privilege level.
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// Principal is the authenticated actor attached to a request by the
// external auth layer. It is immutable for the request's duration.
// Non-privileged roles always carry a concrete TenantID; a superadmin may
// carry none (cross-tenant visibility).
type Principal struct {
	ID       int64
	Role     Role
	TenantID *int64
}

// TenantToken renders the principal's tenant scope for cache keys:
// the tenant id, or "all" when unscoped.
func (p *Principal) TenantToken() string {
	if p == nil || p.TenantID == nil {
		return "all"
	}
	return strconv.FormatInt(*p.TenantID, 10)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal, or nil when absent.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
