package companies

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/mdm-console/mdm-console/internal/masterdata/shared"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/rbac"
	internalShared "github.com/mdm-console/mdm-console/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *httpx.Validator
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers company routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/companies", func(cr chi.Router) {
		cr.With(h.rbac.RequireCapability(internalShared.CapabilityRead)).Get("/", h.List)
		cr.With(h.rbac.RequireCapability(internalShared.CapabilityCreate)).Post("/create/", h.Create)
		cr.With(h.rbac.RequireCapability(internalShared.CapabilityRead)).Get("/{name}/", h.Show)
		cr.With(h.rbac.RequireCapability(internalShared.CapabilityUpdate)).Put("/{name}/", h.Update)
		cr.With(h.rbac.RequireCapability(internalShared.CapabilityDelete)).Delete("/{name}/", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companies, _, err := h.service.List(r.Context(), shared.FiltersFromRequest(r))
	if err != nil {
		h.logger.Error("list companies failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if companies == nil {
		companies = []Company{}
	}
	httpx.JSON(w, http.StatusOK, companies)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	company, err := h.service.Get(r.Context(), nameParam(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form CompanyForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), Company{Name: form.Name})
	if err != nil {
		h.logger.Error("create company failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var form CompanyForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	name := nameParam(r)
	updated, err := h.service.Update(r.Context(), name, Company{Name: form.Name})
	if err != nil {
		h.logger.Error("update company failed", slog.Any("error", err), slog.String("company", name))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	if err := h.service.Delete(r.Context(), name); err != nil {
		h.logger.Error("delete company failed", slog.Any("error", err), slog.String("company", name))
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Company deleted successfully")
}

func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}
