package console

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

// API is the subset of the REST client the console drives.
type API interface {
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	CreatePermission(ctx context.Context, in rbac.PermissionInput) (rbac.Permission, error)
	UpdatePermission(ctx context.Context, id int64, in rbac.PermissionInput) (rbac.Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	ListRolesWithPermissions(ctx context.Context) ([]rbac.Role, error)
	CreateRole(ctx context.Context, in rbac.RoleInput) (rbac.RoleSummary, error)
	UpdateRole(ctx context.Context, id int64, in rbac.RoleInput) (rbac.RoleSummary, error)
	DeleteRole(ctx context.Context, id int64) error
	AssignPermissions(ctx context.Context, roleName string, batch []rbac.Assignment) error
	UpdateAssignmentFlags(ctx context.Context, roleName string, updates []rbac.FlagUpdate) error
	RemoveAssignment(ctx context.Context, roleName string, permissionID int64) error
}

// Board is the client-side view of the catalog and role registry. Reads return
// copies; local state only changes through reloads and flag-toggle commands.
// Once a catalog is loaded, role reads hide assignments whose permission is not
// in it.
type Board struct {
	api      API
	logger   *slog.Logger
	executor Executor
	flights  singleflight.Group

	mu         sync.RWMutex
	catalog    []rbac.Permission
	catalogIDs map[int64]struct{}
	roles      []rbac.Role
}

// NewBoard constructs an empty Board.
func NewBoard(api API, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{api: api, logger: logger, executor: Executor{Logger: logger}}
}

// Load fetches the catalog and the roles concurrently.
func (b *Board) Load(ctx context.Context) error {
	var (
		catalog []rbac.Permission
		roles   []rbac.Role
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = b.api.ListPermissions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		roles, err = b.api.ListRolesWithPermissions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	b.mu.Lock()
	b.setCatalog(catalog)
	b.roles = sortRoles(roles)
	b.mu.Unlock()
	return nil
}

// Refresh refetches the roles. Concurrent calls share one request.
func (b *Board) Refresh(ctx context.Context) error {
	_, err := b.flight(ctx, "roles", func(ctx context.Context) (any, error) {
		roles, err := b.api.ListRolesWithPermissions(ctx)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.roles = sortRoles(roles)
		b.mu.Unlock()
		return nil, nil
	})
	return err
}

// ReloadCatalog refetches the permission catalog. Concurrent calls share one request.
func (b *Board) ReloadCatalog(ctx context.Context) error {
	_, err := b.flight(ctx, "catalog", func(ctx context.Context) (any, error) {
		catalog, err := b.api.ListPermissions(ctx)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.setCatalog(catalog)
		b.mu.Unlock()
		return nil, nil
	})
	return err
}

// flight coalesces calls on key. The shared call outlives any one caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (b *Board) flight(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	shared := context.WithoutCancel(ctx)
	ch := b.flights.DoChan(key, func() (any, error) {
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Catalog returns a copy of the permission catalog ordered by id.
func (b *Board) Catalog() []rbac.Permission {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]rbac.Permission, len(b.catalog))
	for i, p := range b.catalog {
		out[i] = clonePermission(p)
	}
	return out
}

// Permission returns one catalog entry.
func (b *Board) Permission(id int64) (rbac.Permission, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.catalog {
		if p.ID == id {
			return clonePermission(p), true
		}
	}
	return rbac.Permission{}, false
}

// Roles returns a copy of the roles ordered by name.
func (b *Board) Roles() []rbac.Role {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]rbac.Role, len(b.roles))
	for i, r := range b.roles {
		out[i] = b.visibleRole(r)
	}
	return out
}

// Role returns the role named name.
func (b *Board) Role(name string) (rbac.Role, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.roleIndex(name); i >= 0 {
		return b.visibleRole(b.roles[i]), true
	}
	return rbac.Role{}, false
}

// Unassigned returns the catalog permissions the role does not hold yet.
func (b *Board) Unassigned(roleName string) []rbac.Permission {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var held map[int64]rbac.RolePermission
	if i := b.roleIndex(roleName); i >= 0 {
		held = b.roles[i].Permissions
	}
	out := make([]rbac.Permission, 0, len(b.catalog))
	for _, p := range b.catalog {
		if _, ok := held[p.ID]; !ok {
			out = append(out, clonePermission(p))
		}
	}
	return out
}

// RemoveAssignment deletes one pair and refreshes the roles.
func (b *Board) RemoveAssignment(ctx context.Context, roleName string, permissionID int64) error {
	if err := b.api.RemoveAssignment(ctx, roleName, permissionID); err != nil {
		return err
	}
	return b.Refresh(ctx)
}

// DeleteRole deletes a role by name and refreshes the roles.
func (b *Board) DeleteRole(ctx context.Context, roleName string) error {
	role, ok := b.Role(roleName)
	if !ok {
		return notFoundError("role %q not found", roleName)
	}
	if err := b.api.DeleteRole(ctx, role.ID); err != nil {
		return err
	}
	return b.Refresh(ctx)
}

// DeletePermission deletes a catalog entry and reloads both catalog and roles.
func (b *Board) DeletePermission(ctx context.Context, id int64) error {
	if err := b.api.DeletePermission(ctx, id); err != nil {
		return err
	}
	return b.Load(ctx)
}

// setFlag changes one flag in local state and returns the value it replaced.
func (b *Board) setFlag(roleName string, permissionID int64, field rbac.Field, value bool) (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.roleIndex(roleName)
	if i < 0 {
		return false, false
	}
	rp, ok := b.roles[i].Permissions[permissionID]
	if !ok {
		return false, false
	}
	prev := rp.Get(field)
	rp.Flags = rp.Flags.With(field, value)
	b.roles[i].Permissions[permissionID] = rp
	return prev, true
}

// setCatalog replaces the catalog. Callers hold b.mu.
func (b *Board) setCatalog(catalog []rbac.Permission) {
	b.catalog = sortPermissions(catalog)
	b.catalogIDs = make(map[int64]struct{}, len(b.catalog))
	for _, p := range b.catalog {
		b.catalogIDs[p.ID] = struct{}{}
	}
}

// visibleRole copies r without assignments to permissions missing from the
// catalog. Callers hold b.mu.
func (b *Board) visibleRole(r rbac.Role) rbac.Role {
	out := cloneRole(r)
	if b.catalogIDs == nil {
		return out
	}
	for id := range out.Permissions {
		if _, ok := b.catalogIDs[id]; !ok {
			delete(out.Permissions, id)
		}
	}
	return out
}

func (b *Board) roleIndex(name string) int {
	for i, r := range b.roles {
		if r.Name == name {
			return i
		}
	}
	return -1
}

func sortPermissions(in []rbac.Permission) []rbac.Permission {
	out := make([]rbac.Permission, len(in))
	for i, p := range in {
		out[i] = clonePermission(p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortRoles(in []rbac.Role) []rbac.Role {
	out := make([]rbac.Role, len(in))
	for i, r := range in {
		out[i] = cloneRole(r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func clonePermission(p rbac.Permission) rbac.Permission {
	p.TemplateRoles = p.TemplateRoles.Clone()
	return p
}

func cloneRole(r rbac.Role) rbac.Role {
	perms := make(map[int64]rbac.RolePermission, len(r.Permissions))
	for id, p := range r.Permissions {
		perms[id] = p
	}
	r.Permissions = perms
	if r.Priority != nil {
		v := *r.Priority
		r.Priority = &v
	}
	return r
}
