package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ownerQueries allowlists the tenant-scoped tables the boundary may
// resolve. Table names arrive from routing code, never from user input,
// but the allowlist keeps them out of SQL regardless.
var ownerQueries = map[string]string{
	"items":      `SELECT tenant_id FROM items WHERE id = $1`,
	"categories": `SELECT tenant_id FROM categories WHERE id = $1`,
	"locations":  `SELECT tenant_id FROM locations WHERE id = $1`,
}

// OwnerLookup resolves owning tenants from PostgreSQL.
type OwnerLookup struct {
	pool *pgxpool.Pool
}

// NewOwnerLookup constructs OwnerLookup.
func NewOwnerLookup(pool *pgxpool.Pool) *OwnerLookup {
	return &OwnerLookup{pool: pool}
}

// OwningTenant implements TenantLookup. A NULL tenant_id column marks a
// global row and comes back as nil.
func (l *OwnerLookup) OwningTenant(ctx context.Context, table string, id int64) (*int64, error) {
	query, ok := ownerQueries[table]
	if !ok {
		return nil, fmt.Errorf("tenancy: no owner query for table %q", table)
	}
	var tenantID *int64
	if err := l.pool.QueryRow(ctx, query, id).Scan(&tenantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tenantID, nil
}
