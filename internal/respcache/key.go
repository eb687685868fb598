// Package respcache caches successful read-response bodies under tenant-
// and role-aware keys, with glob-style bulk invalidation for mutations.
// It is only safe to mount downstream of the tenancy boundary.
package respcache

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Key is the structured cache key: route path, principal role, tenant
// scope and the canonicalized query. Two requests that could return
// different data for different tenants can never collide, because the
// tenant scope is always part of the rendered key.
type Key struct {
	Path   string
	Role   string
	Tenant string
	Query  url.Values
}

// String renders the key as <path>:<role>:<tenant-or-"all">:<query>.
// The query is serialized as a JSON object with sorted keys, so parameter
// ordering differences cannot produce distinct keys.
func (k Key) String() string {
	tenant := k.Tenant
	if tenant == "" {
		tenant = "all"
	}
	var b strings.Builder
	b.WriteString(k.Path)
	b.WriteByte(':')
	b.WriteString(k.Role)
	b.WriteByte(':')
	b.WriteString(tenant)
	b.WriteByte(':')
	b.WriteString(canonicalQuery(k.Query))
	return b.String()
}

func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return "{}"
	}
	flat := make(map[string]string, len(q))
	for key, vals := range q {
		flat[key] = strings.Join(vals, ",")
	}
	// json.Marshal sorts map keys, which gives the canonical form.
	raw, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
