package emaildomains

import (
	"log/slog"
	"net/http"
	"strconv"

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

// MountRoutes registers email domain routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/emaildomains", func(er chi.Router) {
		er.With(h.rbac.RequireCapability(internalShared.CapabilityRead)).Get("/", h.List)
		er.With(h.rbac.RequireCapability(internalShared.CapabilityCreate)).Post("/create/", h.Create)
		er.With(h.rbac.RequireCapability(internalShared.CapabilityUpdate)).Put("/{id}/", h.Update)
		er.With(h.rbac.RequireCapability(internalShared.CapabilityDelete)).Delete("/{id}/", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	domains, err := h.service.List(r.Context(), shared.FiltersFromRequest(r))
	if err != nil {
		h.logger.Error("list email domains failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if domains == nil {
		domains = []EmailDomain{}
	}
	httpx.JSON(w, http.StatusOK, domains)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form EmailDomainForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), EmailDomain{Name: form.Name})
	if err != nil {
		h.logger.Error("create email domain failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidID)
		return
	}
	var form EmailDomainForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, EmailDomain{Name: form.Name})
	if err != nil {
		h.logger.Error("update email domain failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidID)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete email domain failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Email domain deleted successfully")
}
