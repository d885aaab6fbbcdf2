package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// Handler exposes the catalog, registry and assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *httpx.Validator
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers rbac routes. The router is expected to be authenticated.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireCapability(shared.CapabilityRead)
	create := h.rbac.RequireCapability(shared.CapabilityCreate)
	update := h.rbac.RequireCapability(shared.CapabilityUpdate)
	remove := h.rbac.RequireCapability(shared.CapabilityDelete)

	r.With(read).Get("/permissions/", h.listPermissions)
	r.With(create).Post("/permissions/create/", h.createPermission)
	r.With(read).Get("/permissions/{id}/", h.getPermission)
	r.With(update).Put("/permissions/{id}/", h.updatePermission)
	r.With(remove).Delete("/permissions/{id}/", h.deletePermission)

	r.Route("/userroles", func(ur chi.Router) {
		ur.With(read).Get("/roles/", h.listRoles)
		ur.With(read).Get("/roles-with-permissions/", h.listRolesWithPermissions)
		ur.With(create).Post("/roles/create/", h.createRole)
		ur.With(update).Put("/roles/{id}/", h.updateRole)
		ur.With(remove).Delete("/roles/{id}/", h.deleteRole)
		ur.With(update).Post("/role-permissions/assign/", h.assignPermissions)
		ur.With(update).Put("/role-permissions/update/", h.updateAssignments)
		ur.With(update).Delete("/role-permissions/remove/", h.removeAssignment)
	})
}

type permissionPayload struct {
	Name          string        `json:"permission_name" validate:"required"`
	Description   string        `json:"permission_description"`
	TemplateRoles TemplateRoles `json:"template_roles"`
}

type permissionResponse struct {
	ID            int64         `json:"permission_id"`
	Name          string        `json:"permission_name"`
	Description   string        `json:"permission_description"`
	TemplateRoles TemplateRoles `json:"template_roles"`
}

func toPermissionResponse(p Permission) permissionResponse {
	templates := p.TemplateRoles
	if templates == nil {
		templates = TemplateRoles{}
	}
	return permissionResponse{ID: p.ID, Name: p.Name, Description: p.Description, TemplateRoles: templates}
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(p))
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if err := h.validator.Decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePermission(r.Context(), PermissionInput(payload))
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(p))
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload permissionPayload
	if err := h.validator.Decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdatePermission(r.Context(), id, PermissionInput(payload))
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(p))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	httpx.Message(w, http.StatusOK, "Permission deleted successfully")
}

type rolePayload struct {
	Name     string          `json:"role_name" validate:"required"`
	Priority json.RawMessage `json:"role_priority"`
}

type roleResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"role_name"`
	Priority *int64 `json:"role_priority"`
}

type rolePermissionResponse struct {
	PermissionID int64  `json:"permission_id"`
	Name         string `json:"permission_name"`
	Flags
}

type roleWithPermissionsResponse struct {
	roleResponse
	Permissions []rolePermissionResponse `json:"permissions"`
}

func toRoleResponse(r RoleSummary) roleResponse {
	return roleResponse{ID: r.ID, Name: r.Name, Priority: r.Priority}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) listRolesWithPermissions(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRolesWithPermissions(r.Context())
	if err != nil {
		h.fail(w, "list roles with permissions", err)
		return
	}
	out := make([]roleWithPermissionsResponse, 0, len(roles))
	for _, role := range roles {
		perms := make([]rolePermissionResponse, 0, len(role.Permissions))
		for id, p := range role.Permissions {
			perms = append(perms, rolePermissionResponse{PermissionID: id, Name: p.Name, Flags: p.Flags})
		}
		sort.Slice(perms, func(i, j int) bool { return perms[i].PermissionID < perms[j].PermissionID })
		out = append(out, roleWithPermissionsResponse{roleResponse: toRoleResponse(role.RoleSummary), Permissions: perms})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) decodeRole(r *http.Request) (RoleInput, error) {
	var payload rolePayload
	if err := h.validator.Decode(r, &payload); err != nil {
		return RoleInput{}, err
	}
	priority, err := decodePriority(payload.Priority)
	if err != nil {
		return RoleInput{}, err
	}
	return RoleInput{Name: payload.Name, Priority: priority}, nil
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeRole(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := h.decodeRole(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	httpx.Message(w, http.StatusOK, "Role deleted successfully")
}

type assignmentPayload struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
	Flags
}

type assignPayload struct {
	RoleName    string              `json:"role_name" validate:"required"`
	Assignments []assignmentPayload `json:"assignments" validate:"required,min=1,dive"`
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	var payload assignPayload
	if err := h.validator.Decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch := make([]Assignment, 0, len(payload.Assignments))
	for _, a := range payload.Assignments {
		batch = append(batch, Assignment{PermissionID: a.PermissionID, Flags: a.Flags})
	}
	if err := h.service.AssignPermissions(r.Context(), payload.RoleName, batch); err != nil {
		h.fail(w, "assign permissions", err)
		return
	}
	httpx.Message(w, http.StatusOK, "Permissions assigned successfully")
}

type flagUpdatePayload struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
	CanCreate    *bool `json:"can_create"`
	CanUpdate    *bool `json:"can_update"`
	CanDelete    *bool `json:"can_delete"`
	CanExport    *bool `json:"can_export"`
}

// toFlagUpdate requires exactly one flag to be present.
func (p flagUpdatePayload) toFlagUpdate() (FlagUpdate, error) {
	var (
		out   FlagUpdate
		count int
	)
	for _, c := range []struct {
		field Field
		value *bool
	}{
		{FieldCreate, p.CanCreate},
		{FieldUpdate, p.CanUpdate},
		{FieldDelete, p.CanDelete},
		{FieldExport, p.CanExport},
	} {
		if c.value == nil {
			continue
		}
		count++
		out = FlagUpdate{PermissionID: p.PermissionID, Field: c.field, Value: *c.value}
	}
	if count != 1 {
		return FlagUpdate{}, fmt.Errorf("%w: update for permission %d must carry exactly one can_* field", httpx.ErrValidation, p.PermissionID)
	}
	return out, nil
}

type updateFlagsPayload struct {
	RoleName string              `json:"role_name" validate:"required"`
	Updates  []flagUpdatePayload `json:"updates" validate:"required,min=1,dive"`
}

func (h *Handler) updateAssignments(w http.ResponseWriter, r *http.Request) {
	var payload updateFlagsPayload
	if err := h.validator.Decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updates := make([]FlagUpdate, 0, len(payload.Updates))
	for _, u := range payload.Updates {
		fu, err := u.toFlagUpdate()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		updates = append(updates, fu)
	}
	if err := h.service.UpdateAssignmentFlags(r.Context(), payload.RoleName, updates); err != nil {
		h.fail(w, "update assignment flags", err)
		return
	}
	httpx.Message(w, http.StatusOK, "Permissions updated successfully")
}

type removePayload struct {
	RoleName     string `json:"role_name" validate:"required"`
	PermissionID int64  `json:"permission_id" validate:"required,gt=0"`
}

func (h *Handler) removeAssignment(w http.ResponseWriter, r *http.Request) {
	var payload removePayload
	if err := h.validator.Decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveAssignment(r.Context(), payload.RoleName, payload.PermissionID); err != nil {
		h.fail(w, "remove assignment", err)
		return
	}
	httpx.Message(w, http.StatusOK, "Permission removed successfully")
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", httpx.ErrValidation, chi.URLParam(r, "id"))
	}
	return id, nil
}

// decodePriority accepts a JSON number, a numeric string, null or "". Fractions
// and non-numeric text are rejected.
func decodePriority(raw json.RawMessage) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: role_priority: %v", httpx.ErrValidation, err)
		}
		return ParsePriority(s)
	}
	return ParsePriority(strings.TrimSpace(string(raw)))
}
