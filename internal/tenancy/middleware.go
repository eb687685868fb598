package tenancy

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stocktide/stocktide/internal/platform/httpx"
)

// Trusted identity headers set by the external auth gateway after token
// verification. Requests reaching this service directly, without the
// gateway, simply carry no principal and fail RequirePrincipal.
const (
	HeaderUserID   = "X-Auth-User-Id"
	HeaderRole     = "X-Auth-Role"
	HeaderTenantID = "X-Auth-Tenant-Id"
)

// TenantFilterParam is the query parameter a superadmin uses to narrow
// their view to one tenant.
const TenantFilterParam = "tenant_id"

// Middleware wires boundary checks into the HTTP layer.
type Middleware struct {
	Boundary *Boundary
	Logger   *slog.Logger
}

// FromHeaders builds the request principal from gateway headers. A
// malformed identity is treated the same as no identity at all.
func (m Middleware) FromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFromHeaders(r)
		if p != nil {
			r = r.WithContext(ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePrincipal rejects requests that carry no principal.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			RespondError(w, ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireResource authorizes access to the resource identified by the
// given chi URL parameter before the handler (and any response cache)
// runs. The superadmin tenant filter is read from the query string.
func (m Middleware) RequireResource(table, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil {
				RespondError(w, ErrNotFound)
				return
			}
			p := PrincipalFromContext(r.Context())
			filter := TenantFilter(r)
			if err := m.Boundary.AuthorizeResourceAccess(r.Context(), p, table, id, filter); err != nil {
				if m.Logger != nil && errors.Is(err, ErrLookupFailed) {
					m.Logger.Error("boundary lookup failed", slog.String("table", table), slog.Any("error", err))
				}
				RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantFilter parses the explicit tenant filter from the query string.
// A value that does not parse to an integer counts as absent.
func TenantFilter(r *http.Request) *int64 {
	raw := r.URL.Query().Get(TenantFilterParam)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// RespondError maps boundary errors onto problem responses. The denied
// response never names the tenant that actually owns the resource.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		httpx.Problem(w, http.StatusUnauthorized, "Authentication Required", "no principal attached to request")
	case errors.Is(err, ErrAccessDenied):
		httpx.Problem(w, http.StatusForbidden, "Access Denied", "")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	default:
		// Lookup failures and anything unclassified are server faults.
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func principalFromHeaders(r *http.Request) *Principal {
	rawID := r.Header.Get(HeaderUserID)
	if rawID == "" {
		return nil
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}
	role := Role(r.Header.Get(HeaderRole))
	if !role.Valid() {
		return nil
	}
	p := &Principal{ID: id, Role: role}
	if rawTenant := r.Header.Get(HeaderTenantID); rawTenant != "" {
		tenantID, err := strconv.ParseInt(rawTenant, 10, 64)
		if err != nil {
			return nil
		}
		p.TenantID = &tenantID
	}
	return p
}
