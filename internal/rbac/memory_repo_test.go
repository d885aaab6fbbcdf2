package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

type assignmentKey struct {
	role, permission int64
}

type memoryRepo struct {
	mu          sync.Mutex
	permissions map[int64]Permission
	roles       map[int64]RoleSummary
	assignments map[assignmentKey]Flags
	nextPermID  int64
	nextRoleID  int64

	failUpsert error
	failList   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		permissions: make(map[int64]Permission),
		roles:       make(map[int64]RoleSummary),
		assignments: make(map[assignmentKey]Flags),
	}
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	out := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		p.TemplateRoles = p.TemplateRoles.Clone()
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.permissions[id]
	if !ok {
		return Permission{}, httpx.ErrNotFound
	}
	p.TemplateRoles = p.TemplateRoles.Clone()
	return p, nil
}

func (r *memoryRepo) nameTaken(name string, except int64) bool {
	for id, p := range r.permissions {
		if p.Name == name && id != except {
			return true
		}
	}
	return false
}

func (r *memoryRepo) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nameTaken(in.Name, 0) {
		return Permission{}, fmt.Errorf("%w: permissions_name_key", httpx.ErrDuplicate)
	}
	r.nextPermID++
	p := Permission{ID: r.nextPermID, Name: in.Name, Description: in.Description, TemplateRoles: in.TemplateRoles.Clone(), CreatedAt: time.Now()}
	r.permissions[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpdatePermission(ctx context.Context, id int64, in PermissionInput) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.permissions[id]
	if !ok {
		return Permission{}, httpx.ErrNotFound
	}
	if r.nameTaken(in.Name, id) {
		return Permission{}, fmt.Errorf("%w: permissions_name_key", httpx.ErrDuplicate)
	}
	p.Name, p.Description, p.TemplateRoles = in.Name, in.Description, in.TemplateRoles.Clone()
	r.permissions[id] = p
	return p, nil
}

func (r *memoryRepo) DeletePermission(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.permissions[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(r.permissions, id)
	return nil
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoleSummary, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetRoleByName(ctx context.Context, name string) (RoleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return RoleSummary{}, httpx.ErrNotFound
}

func (r *memoryRepo) CreateRole(ctx context.Context, in RoleInput) (RoleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == in.Name {
			return RoleSummary{}, fmt.Errorf("%w: roles_name_key", httpx.ErrDuplicate)
		}
	}
	r.nextRoleID++
	role := RoleSummary{ID: r.nextRoleID, Name: in.Name, Priority: in.Priority}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id int64, in RoleInput) (RoleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return RoleSummary{}, httpx.ErrNotFound
	}
	role.Name, role.Priority = in.Name, in.Priority
	r.roles[id] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(r.roles, id)
	for k := range r.assignments {
		if k.role == id {
			delete(r.assignments, k)
		}
	}
	return nil
}

func (r *memoryRepo) ListAssignments(ctx context.Context) ([]StoredAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StoredAssignment, 0, len(r.assignments))
	for k, f := range r.assignments {
		out = append(out, StoredAssignment{RoleID: k.role, PermissionID: k.permission, Flags: f})
	}
	return out, nil
}

func (r *memoryRepo) UpsertAssignments(ctx context.Context, roleID int64, assignments []Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert != nil {
		return r.failUpsert
	}
	for _, a := range assignments {
		r.assignments[assignmentKey{roleID, a.PermissionID}] = a.Flags
	}
	return nil
}

func (r *memoryRepo) UpdateAssignmentFlags(ctx context.Context, roleID int64, updates []FlagUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := make(map[assignmentKey]Flags, len(updates))
	for _, u := range updates {
		if _, err := flagColumn(u.Field); err != nil {
			return err
		}
		k := assignmentKey{roleID, u.PermissionID}
		f, ok := staged[k]
		if !ok {
			if f, ok = r.assignments[k]; !ok {
				return httpx.ErrNotFound
			}
		}
		staged[k] = f.With(u.Field, u.Value)
	}
	for k, f := range staged {
		r.assignments[k] = f
	}
	return nil
}

func (r *memoryRepo) DeleteAssignment(ctx context.Context, roleID, permissionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := assignmentKey{roleID, permissionID}
	if _, ok := r.assignments[k]; !ok {
		return httpx.ErrNotFound
	}
	delete(r.assignments, k)
	return nil
}

func (r *memoryRepo) PruneAssignments(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.assignments {
		if _, ok := r.permissions[k.permission]; !ok {
			delete(r.assignments, k)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) RoleCapabilities(ctx context.Context, roleName, permissionName string) (Flags, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, f := range r.assignments {
		if r.roles[k.role].Name == roleName && r.permissions[k.permission].Name == permissionName {
			return f, nil
		}
	}
	return Flags{}, httpx.ErrNotFound
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type recordingPruner struct {
	ids []int64
	err error
}

func (p *recordingPruner) EnqueuePruneAssignments(ctx context.Context, permissionID int64) error {
	p.ids = append(p.ids, permissionID)
	return p.err
}
