package apiclient

import (
	"context"
	"net/http"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

type permissionWire struct {
	ID            int64              `json:"permission_id,omitempty"`
	Name          string             `json:"permission_name"`
	Description   string             `json:"permission_description"`
	TemplateRoles rbac.TemplateRoles `json:"template_roles"`
}

func (p permissionWire) toDomain() rbac.Permission {
	templates := p.TemplateRoles
	if templates == nil {
		templates = rbac.TemplateRoles{}
	}
	return rbac.Permission{ID: p.ID, Name: p.Name, Description: p.Description, TemplateRoles: templates}
}

func permissionBody(in rbac.PermissionInput) permissionWire {
	templates := in.TemplateRoles
	if templates == nil {
		templates = rbac.TemplateRoles{}
	}
	return permissionWire{Name: in.Name, Description: in.Description, TemplateRoles: templates}
}

type roleWire struct {
	ID          int64                `json:"id"`
	Name        string               `json:"role_name"`
	Priority    *int64               `json:"role_priority"`
	Permissions []rolePermissionWire `json:"permissions"`
}

type rolePermissionWire struct {
	PermissionID int64  `json:"permission_id"`
	Name         string `json:"permission_name"`
	rbac.Flags
}

func (r roleWire) summary() rbac.RoleSummary {
	return rbac.RoleSummary{ID: r.ID, Name: r.Name, Priority: r.Priority}
}

func (r roleWire) toDomain() rbac.Role {
	perms := make(map[int64]rbac.RolePermission, len(r.Permissions))
	for _, p := range r.Permissions {
		perms[p.PermissionID] = rbac.RolePermission{Name: p.Name, Flags: p.Flags}
	}
	return rbac.Role{RoleSummary: r.summary(), Permissions: perms}
}

type rolesEnvelope struct {
	Roles []roleWire `json:"roles"`
}

type roleBody struct {
	Name     string `json:"role_name"`
	Priority *int64 `json:"role_priority"`
}

type assignmentWire struct {
	PermissionID int64 `json:"permission_id"`
	rbac.Flags
}

type assignBody struct {
	RoleName    string           `json:"role_name"`
	Assignments []assignmentWire `json:"assignments"`
}

type updateBody struct {
	RoleName string           `json:"role_name"`
	Updates  []map[string]any `json:"updates"`
}

type removeBody struct {
	RoleName     string `json:"role_name"`
	PermissionID int64  `json:"permission_id"`
}

// ListPermissions returns the whole catalog.
func (c *Client) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	var wire []permissionWire
	if err := c.do(ctx, http.MethodGet, "/permissions/", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]rbac.Permission, 0, len(wire))
	for _, p := range wire {
		out = append(out, p.toDomain())
	}
	return out, nil
}

// GetPermission fetches one catalog entry.
func (c *Client) GetPermission(ctx context.Context, id int64) (rbac.Permission, error) {
	var wire permissionWire
	if err := c.do(ctx, http.MethodGet, idPath("/permissions/%d/", id), nil, &wire); err != nil {
		return rbac.Permission{}, err
	}
	return wire.toDomain(), nil
}

// CreatePermission adds a catalog entry.
func (c *Client) CreatePermission(ctx context.Context, in rbac.PermissionInput) (rbac.Permission, error) {
	var wire permissionWire
	if err := c.do(ctx, http.MethodPost, "/permissions/create/", permissionBody(in), &wire); err != nil {
		return rbac.Permission{}, err
	}
	return wire.toDomain(), nil
}

// UpdatePermission replaces the editable fields, template map included.
func (c *Client) UpdatePermission(ctx context.Context, id int64, in rbac.PermissionInput) (rbac.Permission, error) {
	var wire permissionWire
	if err := c.do(ctx, http.MethodPut, idPath("/permissions/%d/", id), permissionBody(in), &wire); err != nil {
		return rbac.Permission{}, err
	}
	return wire.toDomain(), nil
}

// DeletePermission removes a catalog entry.
func (c *Client) DeletePermission(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/permissions/%d/", id), nil, nil)
}

// ListRoles returns roles without assignments.
func (c *Client) ListRoles(ctx context.Context) ([]rbac.RoleSummary, error) {
	var env rolesEnvelope
	if err := c.do(ctx, http.MethodGet, "/userroles/roles/", nil, &env); err != nil {
		return nil, err
	}
	out := make([]rbac.RoleSummary, 0, len(env.Roles))
	for _, r := range env.Roles {
		out = append(out, r.summary())
	}
	return out, nil
}

// ListRolesWithPermissions returns roles with their resolved assignments.
func (c *Client) ListRolesWithPermissions(ctx context.Context) ([]rbac.Role, error) {
	var env rolesEnvelope
	if err := c.do(ctx, http.MethodGet, "/userroles/roles-with-permissions/", nil, &env); err != nil {
		return nil, err
	}
	out := make([]rbac.Role, 0, len(env.Roles))
	for _, r := range env.Roles {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CreateRole registers a role.
func (c *Client) CreateRole(ctx context.Context, in rbac.RoleInput) (rbac.RoleSummary, error) {
	var wire roleWire
	if err := c.do(ctx, http.MethodPost, "/userroles/roles/create/", roleBody(in), &wire); err != nil {
		return rbac.RoleSummary{}, err
	}
	return wire.summary(), nil
}

// UpdateRole renames or reprioritises a role.
func (c *Client) UpdateRole(ctx context.Context, id int64, in rbac.RoleInput) (rbac.RoleSummary, error) {
	var wire roleWire
	if err := c.do(ctx, http.MethodPut, idPath("/userroles/roles/%d/", id), roleBody(in), &wire); err != nil {
		return rbac.RoleSummary{}, err
	}
	return wire.summary(), nil
}

// DeleteRole removes a role and its assignments.
func (c *Client) DeleteRole(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/userroles/roles/%d/", id), nil, nil)
}

// AssignPermissions upserts a batch of assignments for roleName.
func (c *Client) AssignPermissions(ctx context.Context, roleName string, batch []rbac.Assignment) error {
	body := assignBody{RoleName: roleName, Assignments: make([]assignmentWire, 0, len(batch))}
	for _, a := range batch {
		body.Assignments = append(body.Assignments, assignmentWire{PermissionID: a.PermissionID, Flags: a.Flags})
	}
	return c.do(ctx, http.MethodPost, "/userroles/role-permissions/assign/", body, nil)
}

// UpdateAssignmentFlags changes single flags on existing assignments. Each
// update carries only its own field so other flags stay untouched.
func (c *Client) UpdateAssignmentFlags(ctx context.Context, roleName string, updates []rbac.FlagUpdate) error {
	body := updateBody{RoleName: roleName, Updates: make([]map[string]any, 0, len(updates))}
	for _, u := range updates {
		body.Updates = append(body.Updates, map[string]any{
			"permission_id": u.PermissionID,
			string(u.Field): u.Value,
		})
	}
	return c.do(ctx, http.MethodPut, "/userroles/role-permissions/update/", body, nil)
}

// RemoveAssignment deletes one role-permission pair.
func (c *Client) RemoveAssignment(ctx context.Context, roleName string, permissionID int64) error {
	return c.do(ctx, http.MethodDelete, "/userroles/role-permissions/remove/", removeBody{RoleName: roleName, PermissionID: permissionID}, nil)
}
