package items

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stocktide/stocktide/internal/fieldcrypt"
	"github.com/stocktide/stocktide/internal/respcache"
	"github.com/stocktide/stocktide/internal/tenancy"
)

type webFixture struct {
	*fixture
	router chi.Router
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	f := newFixture(t)
	boundary := tenancy.NewBoundary(memoryLookup{repo: f.repo}, f.sink, nil)
	mw := tenancy.Middleware{Boundary: boundary}
	cacheMW := respcache.Middleware{Store: f.store}.Handler
	h := NewHandler(nil, f.svc, mw, cacheMW)

	r := chi.NewRouter()
	r.Use(mw.FromHeaders)
	r.Route(RoutePrefix, h.MountRoutes)
	return &webFixture{fixture: f, router: r}
}

func (f *webFixture) do(t *testing.T, method, target, body string, p *tenancy.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if p != nil {
		req.Header.Set(tenancy.HeaderUserID, fmt.Sprintf("%d", p.ID))
		req.Header.Set(tenancy.HeaderRole, string(p.Role))
		if p.TenantID != nil {
			req.Header.Set(tenancy.HeaderTenantID, fmt.Sprintf("%d", *p.TenantID))
		}
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)

	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt","qty":4,"unit_cost":1500,"supplier_tax_id":"tax-1"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, int64(5), created.TenantID)
	require.Equal(t, "tax-1", created.SupplierTaxID)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d", created.ID), "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var got Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "tax-1", got.SupplierTaxID)
}

func TestHandlerRequiresPrincipal(t *testing.T) {
	f := newWebFixture(t)
	rec := f.do(t, http.MethodGet, "/api/items", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)

	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"","name":""}`, alice)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/items", `not json`, alice)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerNonNumericIDIsNotFound(t *testing.T) {
	f := newWebFixture(t)
	rec := f.do(t, http.MethodGet, "/api/items/abc", "", member(10, 5))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListServesRepeatsFromCache(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)
	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	first := f.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := f.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.Equal(t, first.Body.String(), second.Body.String())
}

func TestHandlerMutationStalesCachedList(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)

	rec := f.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"), "create must evict the tenant's list")

	var listing struct {
		Items []Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Items, 1)
}

// A different tenant's member is denied a resource even when its
// response sits in the cache, because the boundary runs before the
// cache middleware on every request.
func TestHandlerCrossTenantDeniedEvenWhenCached(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)
	bob := member(20, 6)

	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt","supplier_tax_id":"secret"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	target := fmt.Sprintf("/api/items/%d", created.ID)

	// Warm the cache as the owner.
	rec = f.do(t, http.MethodGet, target, "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, target, "", alice)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = f.do(t, http.MethodGet, target, "", bob)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")
	require.JSONEq(t, `{"title":"Access Denied","status":403}`, rec.Body.String(), "denial must not name the owning tenant")
}

func TestHandlerListKeysAreTenantScoped(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)
	bob := member(20, 6)

	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"A5","name":"Alice item"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	recA := f.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, "MISS", recA.Header().Get("X-Cache"))

	// Bob's first list is a miss too, never Alice's cached body.
	recB := f.do(t, http.MethodGet, "/api/items", "", bob)
	require.Equal(t, "MISS", recB.Header().Get("X-Cache"))
	require.NotContains(t, recB.Body.String(), "Alice item")
}

func TestHandlerSuperadminTenantFilter(t *testing.T) {
	f := newWebFixture(t)
	super := &tenancy.Principal{ID: 1, Role: tenancy.RoleSuperadmin}

	rec := f.do(t, http.MethodPost, "/api/items", `{"tenant_id":5,"sku":"A","name":"A"}`, super)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/items", `{"tenant_id":6,"sku":"B","name":"B"}`, super)
	require.Equal(t, http.StatusCreated, rec.Code)

	var listing struct {
		Items []Item `json:"items"`
	}
	rec = f.do(t, http.MethodGet, "/api/items?tenant_id=6", "", super)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Items, 1)
	require.Equal(t, "B", listing.Items[0].SKU)

	rec = f.do(t, http.MethodGet, "/api/items", "", super)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Items, 2)
}

func TestHandlerUpdateAndDelete(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)

	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	target := fmt.Sprintf("/api/items/%d", created.ID)

	rec = f.do(t, http.MethodPut, target, `{"name":"Bolt v2","qty":9,"unit_cost":1200}`, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "Bolt v2", updated.Name)

	rec = f.do(t, http.MethodDelete, target, "", alice)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, target, "", alice)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDuplicateSKUConflict(t *testing.T) {
	f := newWebFixture(t)
	alice := member(10, 5)

	rec := f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/items", `{"sku":"WH-001","name":"Bolt again"}`, alice)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCacheEntriesExpire(t *testing.T) {
	repo := newMemoryRepo()
	sink := &recordingSink{}
	cipher, err := fieldcrypt.New("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", nil)
	require.NoError(t, err)
	store := respcache.NewMemoryStore(20 * time.Millisecond)
	boundary := tenancy.NewBoundary(memoryLookup{repo: repo}, sink, nil)
	svc := NewService(repo, boundary, cipher, sink, respcache.NewInvalidator(store), nil)
	mw := tenancy.Middleware{Boundary: boundary}
	h := NewHandler(nil, svc, mw, respcache.Middleware{Store: store, TTL: 20 * time.Millisecond}.Handler)

	r := chi.NewRouter()
	r.Use(mw.FromHeaders)
	r.Route(RoutePrefix, h.MountRoutes)
	wf := &webFixture{fixture: &fixture{repo: repo, svc: svc, sink: sink, store: store, cipher: cipher}, router: r}

	alice := member(10, 5)
	rec := wf.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	rec = wf.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	time.Sleep(40 * time.Millisecond)
	rec = wf.do(t, http.MethodGet, "/api/items", "", alice)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}
