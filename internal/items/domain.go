// Package items implements tenant-scoped inventory items: the
// representative CRUD surface that exercises the trust-boundary layer
// end to end (boundary, field encryption, response cache, audit).
package items

import (
	"errors"
	"time"
)

// Table is the lookup table name the tenancy boundary resolves owners
// against.
const Table = "items"

// RoutePrefix is the cached-read key prefix mutations invalidate.
const RoutePrefix = "/api/items"

// Item is an inventory item owned by exactly one tenant. SupplierTaxID
// and Notes are stored encrypted at rest.
type Item struct {
	ID            int64     `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Qty           float64   `json:"qty"`
	UnitCost      float64   `json:"unit_cost"`
	SupplierTaxID string    `json:"supplier_tax_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	TenantID *int64
	Search   string
	Limit    int
	Offset   int
}

// CreateInput carries a validated create request.
type CreateInput struct {
	TenantID      *int64
	SKU           string
	Name          string
	Qty           float64
	UnitCost      float64
	SupplierTaxID string
	Notes         string
}

// UpdateInput carries a validated update request.
type UpdateInput struct {
	Name          string
	Qty           float64
	UnitCost      float64
	SupplierTaxID string
	Notes         string
}

// ErrNotFound indicates a missing item row.
var ErrNotFound = errors.New("items: not found")

// ErrDuplicateSKU indicates a SKU collision within a tenant.
var ErrDuplicateSKU = errors.New("items: duplicate sku for tenant")

// ErrTenantRequired indicates an unscoped write that needs an owning
// tenant (a superadmin creating without a tenant selection).
var ErrTenantRequired = errors.New("items: tenant required for write")
