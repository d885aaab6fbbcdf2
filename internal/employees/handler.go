package employees

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/rbac"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// Handler exposes employee endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *httpx.Validator
}

// NewHandler creates a handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers employee routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireCapability(shared.CapabilityRead)
	create := h.rbac.RequireCapability(shared.CapabilityCreate)
	update := h.rbac.RequireCapability(shared.CapabilityUpdate)
	remove := h.rbac.RequireCapability(shared.CapabilityDelete)

	// login, logout and me live under the same prefix and are mounted by auth
	r.With(read).Get("/employee/list/", h.list)
	r.With(read).Get("/employee/without-role/", h.listWithoutRole)
	r.With(create).Post("/employee/register/", h.register)
	r.With(update).Put("/employee/update/{id}/", h.update)
	r.With(remove).Delete("/employee/delete/{id}/", h.delete)
	r.With(update).Put("/employee/assign-role/{id}/", h.assignRole)
	r.With(update).Put("/employee/bulk-assign-role/", h.bulkAssignRole)
}

type employeeResponse struct {
	ID       int64   `json:"emp_id"`
	Name     string  `json:"emp_name"`
	Email    string  `json:"email"`
	Company  *string `json:"company"`
	Role     *string `json:"role"`
	IsActive bool    `json:"is_active"`
}

func toResponse(e Employee) employeeResponse {
	return employeeResponse{ID: e.ID, Name: e.Name, Email: e.Email, Company: e.Company, Role: e.Role, IsActive: e.IsActive}
}

func toResponses(list []Employee) []employeeResponse {
	out := make([]employeeResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toResponse(e))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list employees", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(list))
}

func (h *Handler) listWithoutRole(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListWithoutRole(r.Context())
	if err != nil {
		h.fail(w, "list employees without role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees_without_role": toResponses(list)})
}

type registerForm struct {
	Name     string `json:"emp_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Company  string `json:"company"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Register(r.Context(), RegisterInput(form))
	if err != nil {
		h.fail(w, "register employee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(e))
}

type updateForm struct {
	Name     *string `json:"emp_name"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Company  *string `json:"company"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var form updateForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Update(r.Context(), id, UpdateInput(form))
	if err != nil {
		h.fail(w, "update employee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete employee", err)
		return
	}
	httpx.Message(w, http.StatusOK, "Employee deleted successfully")
}

type assignRoleForm struct {
	Role string `json:"role"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var form assignRoleForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.AssignRole(r.Context(), id, form.Role)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e))
}

type bulkAssignForm struct {
	EmployeeIDs []int64 `json:"emp_ids" validate:"required,min=1"`
	Role        string  `json:"role" validate:"required"`
}

type bulkAssignResponse struct {
	Message          string  `json:"message"`
	UpdatedEmployees []int64 `json:"updated_employees"`
}

func (h *Handler) bulkAssignRole(w http.ResponseWriter, r *http.Request) {
	var form bulkAssignForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.BulkAssignRole(r.Context(), form.EmployeeIDs, form.Role)
	if err != nil {
		h.fail(w, "bulk assign role", err)
		return
	}
	if updated == nil {
		updated = []int64{}
	}
	httpx.JSON(w, http.StatusOK, bulkAssignResponse{
		Message:          "Role assigned to " + strconv.Itoa(len(updated)) + " employees",
		UpdatedEmployees: updated,
	})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
