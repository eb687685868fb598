package items

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocktide/stocktide/internal/platform/httpx"
	"github.com/stocktide/stocktide/internal/tenancy"
)

// Handler wires HTTP endpoints for the items module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	tenancy  tenancy.Middleware
	cache    func(http.Handler) http.Handler
}

// NewHandler constructs the items handler. cache is the response-cache
// middleware applied to read routes; nil disables caching.
func NewHandler(logger *slog.Logger, service *Service, tenancyMW tenancy.Middleware, cache func(http.Handler) http.Handler) *Handler {
	if cache == nil {
		cache = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tenancy:  tenancyMW,
		cache:    cache,
	}
}

// MountRoutes registers item routes. The boundary runs before the cache
// on every read: a cached body is only ever served to a principal that
// just passed authorization for it.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.tenancy.RequirePrincipal)

		r.With(h.cache).Get("/", h.list)
		r.Post("/", h.create)

		r.Group(func(r chi.Router) {
			r.Use(h.tenancy.RequireResource(Table, "itemID"))
			r.With(h.cache).Get("/{itemID}", h.get)
			r.Put("/{itemID}", h.update)
			r.Delete("/{itemID}", h.delete)
		})
	})
}

type createRequest struct {
	TenantID      *int64  `json:"tenant_id" validate:"omitempty,gt=0"`
	SKU           string  `json:"sku" validate:"required,max=64"`
	Name          string  `json:"name" validate:"required,max=255"`
	Qty           float64 `json:"qty" validate:"gte=0"`
	UnitCost      float64 `json:"unit_cost" validate:"gte=0"`
	SupplierTaxID string  `json:"supplier_tax_id" validate:"max=128"`
	Notes         string  `json:"notes" validate:"max=2000"`
}

type updateRequest struct {
	Name          string  `json:"name" validate:"required,max=255"`
	Qty           float64 `json:"qty" validate:"gte=0"`
	UnitCost      float64 `json:"unit_cost" validate:"gte=0"`
	SupplierTaxID string  `json:"supplier_tax_id" validate:"max=128"`
	Notes         string  `json:"notes" validate:"max=2000"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	filter := ListFilter{Search: q.Get("q")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 1 {
		filter.Offset = (page - 1) * 100
	}
	if p.Role == tenancy.RoleSuperadmin {
		filter.TenantID = tenancy.TenantFilter(r)
	}

	result, err := h.service.List(r.Context(), p, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p := tenancy.PrincipalFromContext(r.Context())
	item, err := h.service.Create(r.Context(), p, CreateInput{
		TenantID:      req.TenantID,
		SKU:           req.SKU,
		Name:          req.Name,
		Qty:           req.Qty,
		UnitCost:      req.UnitCost,
		SupplierTaxID: req.SupplierTaxID,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	id, _ := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	p := tenancy.PrincipalFromContext(r.Context())
	item, err := h.service.Update(r.Context(), p, id, UpdateInput{
		Name:          req.Name,
		Qty:           req.Qty,
		UnitCost:      req.UnitCost,
		SupplierTaxID: req.SupplierTaxID,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	p := tenancy.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, ErrDuplicateSKU):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "sku already exists for this tenant")
	case errors.Is(err, ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant_id is required")
	default:
		if h.logger != nil && !errors.Is(err, tenancy.ErrAccessDenied) && !errors.Is(err, tenancy.ErrAuthenticationRequired) {
			h.logger.Error("items request failed", slog.Any("error", err))
		}
		tenancy.RespondError(w, err)
	}
}
