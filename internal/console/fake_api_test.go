package console

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mdm-console/mdm-console/internal/apiclient"
	"github.com/mdm-console/mdm-console/internal/rbac"
)

// fakeAPI is an in-memory backend with error injection.
type fakeAPI struct {
	mu          sync.Mutex
	nextID      int64
	permissions map[int64]rbac.Permission
	roles       map[string]*rbac.Role

	// keepDangling returns assignments whose permission was deleted, like a
	// backend that does not join against the catalog.
	keepDangling bool

	failFlags  map[int64]error
	failAssign error
	failCreate error

	rolesCalls   atomic.Int32
	catalogCalls atomic.Int32
	// rolesGate, when set, blocks ListRolesWithPermissions until closed.
	rolesGate    chan struct{}
	rolesStarted chan struct{}

	flagUpdates []rbac.FlagUpdate
	assigned    map[string][]rbac.Assignment
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID:      100,
		permissions: map[int64]rbac.Permission{},
		roles:       map[string]*rbac.Role{},
		failFlags:   map[int64]error{},
		assigned:    map[string][]rbac.Assignment{},
	}
}

func serverError(msg string) error {
	return &apiclient.Error{Kind: apiclient.KindServer, Status: 500, Message: msg}
}

func (f *fakeAPI) addPermission(id int64, name, desc string, templates rbac.TemplateRoles) {
	f.permissions[id] = rbac.Permission{ID: id, Name: name, Description: desc, TemplateRoles: templates}
}

func (f *fakeAPI) addRole(id int64, name string, priority *int64, perms map[int64]rbac.Flags) {
	role := &rbac.Role{RoleSummary: rbac.RoleSummary{ID: id, Name: name, Priority: priority}, Permissions: map[int64]rbac.RolePermission{}}
	for pid, flags := range perms {
		role.Permissions[pid] = rbac.RolePermission{Name: f.permissions[pid].Name, Flags: flags}
	}
	f.roles[name] = role
}

func (f *fakeAPI) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	f.catalogCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rbac.Permission, 0, len(f.permissions))
	for _, p := range f.permissions {
		p.TemplateRoles = p.TemplateRoles.Clone()
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeAPI) CreatePermission(ctx context.Context, in rbac.PermissionInput) (rbac.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return rbac.Permission{}, f.failCreate
	}
	f.nextID++
	p := rbac.Permission{ID: f.nextID, Name: in.Name, Description: in.Description, TemplateRoles: in.TemplateRoles.Clone()}
	f.permissions[p.ID] = p
	return p, nil
}

func (f *fakeAPI) UpdatePermission(ctx context.Context, id int64, in rbac.PermissionInput) (rbac.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.permissions[id]; !ok {
		return rbac.Permission{}, &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404, Message: "not found"}
	}
	p := rbac.Permission{ID: id, Name: in.Name, Description: in.Description, TemplateRoles: in.TemplateRoles.Clone()}
	f.permissions[id] = p
	return p, nil
}

func (f *fakeAPI) DeletePermission(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.permissions, id)
	return nil
}

func (f *fakeAPI) ListRolesWithPermissions(ctx context.Context) ([]rbac.Role, error) {
	f.rolesCalls.Add(1)
	if f.rolesStarted != nil {
		select {
		case f.rolesStarted <- struct{}{}:
		default:
		}
	}
	if f.rolesGate != nil {
		<-f.rolesGate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rbac.Role, 0, len(f.roles))
	for _, r := range f.roles {
		role := rbac.Role{RoleSummary: r.RoleSummary, Permissions: map[int64]rbac.RolePermission{}}
		for pid, rp := range r.Permissions {
			// dangling assignments are dropped on read
			if p, ok := f.permissions[pid]; ok {
				rp.Name = p.Name
				role.Permissions[pid] = rp
			} else if f.keepDangling {
				role.Permissions[pid] = rp
			}
		}
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeAPI) CreateRole(ctx context.Context, in rbac.RoleInput) (rbac.RoleSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[in.Name]; ok {
		return rbac.RoleSummary{}, &apiclient.Error{Kind: apiclient.KindConflict, Status: 409, Message: "duplicate"}
	}
	f.nextID++
	s := rbac.RoleSummary{ID: f.nextID, Name: in.Name, Priority: in.Priority}
	f.roles[in.Name] = &rbac.Role{RoleSummary: s, Permissions: map[int64]rbac.RolePermission{}}
	return s, nil
}

func (f *fakeAPI) UpdateRole(ctx context.Context, id int64, in rbac.RoleInput) (rbac.RoleSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, r := range f.roles {
		if r.ID == id {
			delete(f.roles, name)
			r.Name = in.Name
			r.Priority = in.Priority
			f.roles[in.Name] = r
			return r.RoleSummary, nil
		}
	}
	return rbac.RoleSummary{}, &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404, Message: "not found"}
}

func (f *fakeAPI) DeleteRole(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, r := range f.roles {
		if r.ID == id {
			delete(f.roles, name)
			return nil
		}
	}
	return &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404, Message: "not found"}
}

func (f *fakeAPI) AssignPermissions(ctx context.Context, roleName string, batch []rbac.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAssign != nil {
		return f.failAssign
	}
	role, ok := f.roles[roleName]
	if !ok {
		return &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404, Message: "role not found"}
	}
	for _, a := range batch {
		role.Permissions[a.PermissionID] = rbac.RolePermission{Flags: a.Flags}
	}
	f.assigned[roleName] = append(f.assigned[roleName], batch...)
	return nil
}

func (f *fakeAPI) UpdateAssignmentFlags(ctx context.Context, roleName string, updates []rbac.FlagUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		if err := f.failFlags[u.PermissionID]; err != nil {
			return err
		}
	}
	role := f.roles[roleName]
	for _, u := range updates {
		rp := role.Permissions[u.PermissionID]
		rp.Flags = rp.Flags.With(u.Field, u.Value)
		role.Permissions[u.PermissionID] = rp
	}
	f.flagUpdates = append(f.flagUpdates, updates...)
	return nil
}

func (f *fakeAPI) RemoveAssignment(ctx context.Context, roleName string, permissionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[roleName]
	if !ok {
		return &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404, Message: "role not found"}
	}
	if _, ok := role.Permissions[permissionID]; !ok {
		return &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404, Message: "assignment not found"}
	}
	delete(role.Permissions, permissionID)
	return nil
}
