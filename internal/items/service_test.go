package items

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocktide/stocktide/internal/audit"
	"github.com/stocktide/stocktide/internal/fieldcrypt"
	"github.com/stocktide/stocktide/internal/respcache"
	"github.com/stocktide/stocktide/internal/tenancy"
)

type memoryRepo struct {
	rows   map[int64]Item
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]Item)}
}

func (r *memoryRepo) Create(ctx context.Context, item Item) (Item, error) {
	for _, existing := range r.rows {
		if existing.TenantID == item.TenantID && existing.SKU == item.SKU {
			return Item{}, ErrDuplicateSKU
		}
	}
	r.nextID++
	item.ID = r.nextID
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	r.rows[item.ID] = item
	return item, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Item, error) {
	item, ok := r.rows[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	var out []Item
	for id := int64(1); id <= r.nextID; id++ {
		item, ok := r.rows[id]
		if !ok {
			continue
		}
		if filter.TenantID != nil && item.TenantID != *filter.TenantID {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *memoryRepo) Update(ctx context.Context, item Item) (Item, error) {
	if _, ok := r.rows[item.ID]; !ok {
		return Item{}, ErrNotFound
	}
	item.UpdatedAt = time.Now()
	r.rows[item.ID] = item
	return item, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

// memoryLookup resolves owners straight from the repo, the way the pg
// lookup resolves them from the items table.
type memoryLookup struct {
	repo *memoryRepo
}

func (l memoryLookup) OwningTenant(ctx context.Context, table string, id int64) (*int64, error) {
	if table != Table {
		return nil, fmt.Errorf("unexpected table %q", table)
	}
	item, ok := l.repo.rows[id]
	if !ok {
		return nil, tenancy.ErrNotFound
	}
	tenant := item.TenantID
	return &tenant, nil
}

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(ctx context.Context, ev audit.Event) {
	s.events = append(s.events, ev)
}

func ptr(v int64) *int64 { return &v }

func member(id, tenant int64) *tenancy.Principal {
	return &tenancy.Principal{ID: id, Role: tenancy.RoleMember, TenantID: ptr(tenant)}
}

type fixture struct {
	repo   *memoryRepo
	svc    *Service
	sink   *recordingSink
	store  *respcache.MemoryStore
	cipher *fieldcrypt.Cipher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	sink := &recordingSink{}
	cipher, err := fieldcrypt.New("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", nil)
	require.NoError(t, err)
	store := respcache.NewMemoryStore(time.Minute)
	boundary := tenancy.NewBoundary(memoryLookup{repo: repo}, sink, nil)
	svc := NewService(repo, boundary, cipher, sink, respcache.NewInvalidator(store), nil)
	return &fixture{repo: repo, svc: svc, sink: sink, store: store, cipher: cipher}
}

func TestCreateAutoFillsTenantAndEncryptsAtRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, member(10, 5), CreateInput{
		SKU:           "WH-001",
		Name:          "Warehouse bolt",
		Qty:           10,
		UnitCost:      1500,
		SupplierTaxID: "01.234.567.8-901.000",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), created.TenantID)
	require.Equal(t, "01.234.567.8-901.000", created.SupplierTaxID, "response carries plaintext")

	stored := f.repo.rows[created.ID]
	require.True(t, fieldcrypt.IsEncrypted(stored.SupplierTaxID), "row must hold ciphertext")
	require.NotEqual(t, created.SupplierTaxID, stored.SupplierTaxID)
	require.Equal(t, "", stored.Notes, "absent sensitive fields stay absent")
}

func TestCreateCrossTenantDenied(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), member(10, 5), CreateInput{
		TenantID: ptr(6),
		SKU:      "WH-001",
		Name:     "Bolt",
	})
	require.ErrorIs(t, err, tenancy.ErrAccessDenied)
	require.Len(t, f.sink.events, 1)
	require.Equal(t, audit.ActionShopAccessViolation, f.sink.events[0].Action)
	require.Empty(t, f.repo.rows)
}

func TestCreateSuperadminWithoutTenantRejected(t *testing.T) {
	f := newFixture(t)
	super := &tenancy.Principal{ID: 1, Role: tenancy.RoleSuperadmin}
	_, err := f.svc.Create(context.Background(), super, CreateInput{SKU: "X", Name: "X"})
	require.ErrorIs(t, err, ErrTenantRequired)
}

func TestGetDecryptsSensitiveFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, member(10, 5), CreateInput{
		SKU: "WH-001", Name: "Bolt", SupplierTaxID: "tax-id", Notes: "private note",
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "tax-id", got.SupplierTaxID)
	require.Equal(t, "private note", got.Notes)
}

func TestGetLegacyPlaintextRowSurvives(t *testing.T) {
	f := newFixture(t)
	// A row written before field encryption was introduced.
	f.repo.nextID++
	f.repo.rows[f.repo.nextID] = Item{ID: f.repo.nextID, TenantID: 5, SKU: "OLD-1", Name: "Legacy", SupplierTaxID: "plain-tax-id"}

	got, err := f.svc.Get(context.Background(), f.repo.nextID)
	require.NoError(t, err)
	require.Equal(t, "plain-tax-id", got.SupplierTaxID)
}

func TestListScopesToPrincipalTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, member(10, 5), CreateInput{SKU: "A", Name: "A"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, member(11, 6), CreateInput{SKU: "B", Name: "B"})
	require.NoError(t, err)

	// Member sees only their tenant, even asking for another.
	rows, err := f.svc.List(ctx, member(10, 5), ListFilter{TenantID: ptr(6)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "A", rows[0].SKU)

	// Superadmin without filter sees everything.
	super := &tenancy.Principal{ID: 1, Role: tenancy.RoleSuperadmin}
	rows, err = f.svc.List(ctx, super, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Superadmin with filter sees one tenant.
	rows, err = f.svc.List(ctx, super, ListFilter{TenantID: ptr(6)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "B", rows[0].SKU)
}

func TestMutationsInvalidateTenantScopedReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := func() {
		f.store.Set(ctx, "/api/items:member:5:{}", []byte("cached"), time.Minute)
		f.store.Set(ctx, "/api/items:member:6:{}", []byte("cached"), time.Minute)
		f.store.Set(ctx, "/api/items:superadmin:all:{}", []byte("cached"), time.Minute)
	}
	assertState := func(wantT5 bool) {
		t.Helper()
		_, hit := f.store.Get(ctx, "/api/items:member:5:{}")
		require.Equal(t, wantT5, hit)
		_, hit = f.store.Get(ctx, "/api/items:member:6:{}")
		require.True(t, hit, "other tenant's cache untouched")
		_, hit = f.store.Get(ctx, "/api/items:superadmin:all:{}")
		require.False(t, hit, "unscoped superadmin view always staled")
	}

	seed()
	created, err := f.svc.Create(ctx, member(10, 5), CreateInput{SKU: "A", Name: "A"})
	require.NoError(t, err)
	assertState(false)

	seed()
	_, err = f.svc.Update(ctx, member(10, 5), created.ID, UpdateInput{Name: "A2"})
	require.NoError(t, err)
	assertState(false)

	seed()
	err = f.svc.Delete(ctx, member(10, 5), created.ID)
	require.NoError(t, err)
	assertState(false)
}

func TestMutationsEmitAuditEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, member(10, 5), CreateInput{SKU: "A", Name: "A"})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, member(10, 5), created.ID, UpdateInput{Name: "B"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, member(10, 5), created.ID))

	var actions []string
	for _, ev := range f.sink.events {
		actions = append(actions, ev.Action)
	}
	require.Equal(t, []string{audit.ActionItemCreated, audit.ActionItemUpdated, audit.ActionItemDeleted}, actions)
}

func TestDuplicateSKUWithinTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, member(10, 5), CreateInput{SKU: "A", Name: "A"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, member(10, 5), CreateInput{SKU: "A", Name: "A again"})
	require.ErrorIs(t, err, ErrDuplicateSKU)

	// Same SKU under another tenant is fine.
	_, err = f.svc.Create(ctx, member(11, 6), CreateInput{SKU: "A", Name: "A elsewhere"})
	require.NoError(t, err)
}
