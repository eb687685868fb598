package items

import (
	"context"
	"log/slog"

	"github.com/stocktide/stocktide/internal/audit"
	"github.com/stocktide/stocktide/internal/fieldcrypt"
	"github.com/stocktide/stocktide/internal/respcache"
	"github.com/stocktide/stocktide/internal/tenancy"
)

// Fields stored encrypted at rest.
var encryptedFields = []string{"supplier_tax_id", "notes"}

// Service handles item business logic behind the tenancy boundary.
type Service struct {
	repo        RepositoryPort
	boundary    *tenancy.Boundary
	cipher      *fieldcrypt.Cipher
	sink        audit.Sink
	invalidator respcache.Invalidator
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, boundary *tenancy.Boundary, cipher *fieldcrypt.Cipher, sink audit.Sink, invalidator respcache.Invalidator, logger *slog.Logger) *Service {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Service{repo: repo, boundary: boundary, cipher: cipher, sink: sink, invalidator: invalidator, logger: logger}
}

// Create scopes the write to the principal's tenant, encrypts sensitive
// fields, persists the item and invalidates the tenant's cached reads.
func (s *Service) Create(ctx context.Context, p *tenancy.Principal, in CreateInput) (Item, error) {
	tenantID, err := s.boundary.ValidateAndScopeTenant(ctx, p, in.TenantID)
	if err != nil {
		return Item{}, err
	}
	if tenantID == nil {
		// A superadmin creating without a tenant selection has nothing
		// to own the row.
		return Item{}, ErrTenantRequired
	}

	sealed, err := s.sealSensitive(in.SupplierTaxID, in.Notes)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		TenantID:      *tenantID,
		SKU:           in.SKU,
		Name:          in.Name,
		Qty:           in.Qty,
		UnitCost:      in.UnitCost,
		SupplierTaxID: sealed["supplier_tax_id"],
		Notes:         sealed["notes"],
	}
	created, err := s.repo.Create(ctx, item)
	if err != nil {
		return Item{}, err
	}

	s.sink.Record(ctx, audit.Event{
		ActorID:    p.ID,
		Action:     audit.ActionItemCreated,
		Table:      Table,
		ResourceID: created.ID,
		Detail:     map[string]any{"sku": created.SKU, "tenant_id": created.TenantID},
	})
	s.invalidate(ctx, created.TenantID)

	return s.openSensitive(created), nil
}

// Get returns a single item with sensitive fields decrypted. Boundary
// authorization has already run in the middleware chain.
func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return s.openSensitive(item), nil
}

// List returns items visible to the principal: their own tenant for
// non-privileged roles, the filtered tenant or everything for superadmin.
func (s *Service) List(ctx context.Context, p *tenancy.Principal, filter ListFilter) ([]Item, error) {
	if p == nil {
		return nil, tenancy.ErrAuthenticationRequired
	}
	if p.Role != tenancy.RoleSuperadmin {
		if p.TenantID == nil {
			return nil, tenancy.ErrAccessDenied
		}
		filter.TenantID = p.TenantID
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(rows))
	for _, item := range rows {
		out = append(out, s.openSensitive(item))
	}
	return out, nil
}

// Update re-encrypts sensitive fields and rewrites the item.
func (s *Service) Update(ctx context.Context, p *tenancy.Principal, id int64, in UpdateInput) (Item, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}

	sealed, err := s.sealSensitive(in.SupplierTaxID, in.Notes)
	if err != nil {
		return Item{}, err
	}

	current.Name = in.Name
	current.Qty = in.Qty
	current.UnitCost = in.UnitCost
	current.SupplierTaxID = sealed["supplier_tax_id"]
	current.Notes = sealed["notes"]

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Item{}, err
	}

	s.sink.Record(ctx, audit.Event{
		ActorID:    p.ID,
		Action:     audit.ActionItemUpdated,
		Table:      Table,
		ResourceID: updated.ID,
		Detail:     map[string]any{"sku": updated.SKU, "tenant_id": updated.TenantID},
	})
	s.invalidate(ctx, updated.TenantID)

	return s.openSensitive(updated), nil
}

// Delete removes the item and drops the cached reads it appeared in.
func (s *Service) Delete(ctx context.Context, p *tenancy.Principal, id int64) error {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.sink.Record(ctx, audit.Event{
		ActorID:    p.ID,
		Action:     audit.ActionItemDeleted,
		Table:      Table,
		ResourceID: id,
		Detail:     map[string]any{"sku": item.SKU, "tenant_id": item.TenantID},
	})
	s.invalidate(ctx, item.TenantID)
	return nil
}

func (s *Service) sealSensitive(supplierTaxID, notes string) (map[string]string, error) {
	record := map[string]string{
		"supplier_tax_id": supplierTaxID,
		"notes":           notes,
	}
	return s.cipher.EncryptFields(record, encryptedFields...)
}

func (s *Service) openSensitive(item Item) Item {
	record := map[string]string{
		"supplier_tax_id": item.SupplierTaxID,
		"notes":           item.Notes,
	}
	opened := s.cipher.DecryptFields(record, encryptedFields...)
	item.SupplierTaxID = opened["supplier_tax_id"]
	item.Notes = opened["notes"]
	return item
}

func (s *Service) invalidate(ctx context.Context, tenantID int64) {
	removed := s.invalidator.RouteForTenant(ctx, RoutePrefix, tenantID)
	// Unscoped superadmin views are keyed under the "all" tenant token
	// and stale the same way.
	removed += s.invalidator.RouteUnscoped(ctx, RoutePrefix)
	if s.logger != nil && removed > 0 {
		s.logger.Debug("invalidated cached reads", slog.Int("count", removed), slog.Int64("tenant_id", tenantID))
	}
}
