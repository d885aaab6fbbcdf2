package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// AssignmentPruner schedules removal of assignments left behind by a deleted permission.
type AssignmentPruner interface {
	EnqueuePruneAssignments(ctx context.Context, permissionID int64) error
}

// Service orchestrates the permission catalog, the role registry and assignments.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	pruner AssignmentPruner
	logger *slog.Logger
}

// NewService constructs a Service. audit and pruner may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, pruner AssignmentPruner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, pruner: pruner, logger: logger}
}

// ListPermissions returns the full catalog ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a permission by id.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	if id <= 0 {
		return Permission{}, fmt.Errorf("%w: invalid permission id", httpx.ErrValidation)
	}
	return s.repo.GetPermission(ctx, id)
}

// CreatePermission adds a catalog entry. A nil template map is stored as empty.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	in, err := normalizePermission(in)
	if err != nil {
		return Permission{}, err
	}
	p, err := s.repo.CreatePermission(ctx, in)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "permission.create", "permission", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// UpdatePermission replaces the editable fields. The template map is stored exactly
// as given: absent keys are removed and disabled entries are kept.
func (s *Service) UpdatePermission(ctx context.Context, id int64, in PermissionInput) (Permission, error) {
	if id <= 0 {
		return Permission{}, fmt.Errorf("%w: invalid permission id", httpx.ErrValidation)
	}
	in, err := normalizePermission(in)
	if err != nil {
		return Permission{}, err
	}
	p, err := s.repo.UpdatePermission(ctx, id, in)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "permission.update", "permission", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// DeletePermission removes a catalog entry even when roles still reference it.
// Leftover assignments are pruned in the background and hidden on read meanwhile.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid permission id", httpx.ErrValidation)
	}
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "permission.delete", "permission", id, nil)
	if s.pruner == nil {
		if _, err := s.repo.PruneAssignments(ctx); err != nil {
			s.logger.Warn("prune assignments", slog.Int64("permission_id", id), slog.Any("error", err))
		}
		return nil
	}
	if err := s.pruner.EnqueuePruneAssignments(ctx, id); err != nil {
		s.logger.Warn("enqueue prune assignments", slog.Int64("permission_id", id), slog.Any("error", err))
	}
	return nil
}

// ListRoles returns roles without assignments.
func (s *Service) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	return s.repo.ListRoles(ctx)
}

// ListRolesWithPermissions returns every role with assignments enriched by the
// permission name. Assignments whose permission no longer exists are dropped.
func (s *Service) ListRolesWithPermissions(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(perms))
	for _, p := range perms {
		names[p.ID] = p.Name
	}
	byRole := make(map[int64]map[int64]RolePermission, len(roles))
	for _, a := range assignments {
		name, ok := names[a.PermissionID]
		if !ok {
			continue
		}
		m := byRole[a.RoleID]
		if m == nil {
			m = make(map[int64]RolePermission)
			byRole[a.RoleID] = m
		}
		m[a.PermissionID] = RolePermission{Name: name, Flags: a.Flags}
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		perms := byRole[r.ID]
		if perms == nil {
			perms = map[int64]RolePermission{}
		}
		out = append(out, Role{RoleSummary: r, Permissions: perms})
	}
	return out, nil
}

// CreateRole registers a role with no assignments.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (RoleSummary, error) {
	in, err := normalizeRole(in)
	if err != nil {
		return RoleSummary{}, err
	}
	role, err := s.repo.CreateRole(ctx, in)
	if err != nil {
		return RoleSummary{}, err
	}
	s.record(ctx, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-prioritises a role.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput) (RoleSummary, error) {
	if id <= 0 {
		return RoleSummary{}, fmt.Errorf("%w: invalid role id", httpx.ErrValidation)
	}
	in, err := normalizeRole(in)
	if err != nil {
		return RoleSummary{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, in)
	if err != nil {
		return RoleSummary{}, err
	}
	s.record(ctx, "role.update", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role and all of its assignments. The catalog is untouched.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid role id", httpx.ErrValidation)
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "role.delete", "role", id, nil)
	return nil
}

// AssignPermissions upserts a batch of assignments on the named role. Existing
// flags are overwritten, never merged. When the batch names a permission twice the
// last entry wins.
func (s *Service) AssignPermissions(ctx context.Context, roleName string, assignments []Assignment) error {
	if len(assignments) == 0 {
		return fmt.Errorf("%w: at least one permission must be selected", httpx.ErrValidation)
	}
	role, err := s.resolveRole(ctx, roleName)
	if err != nil {
		return err
	}
	batch := dedupeAssignments(assignments)
	if err := s.ensurePermissions(ctx, batch); err != nil {
		return err
	}
	if err := s.repo.UpsertAssignments(ctx, role.ID, batch); err != nil {
		return err
	}
	ids := make([]int64, 0, len(batch))
	for _, a := range batch {
		ids = append(ids, a.PermissionID)
	}
	s.record(ctx, "role.assign_permissions", "role", role.ID, map[string]any{"permission_ids": ids})
	return nil
}

// UpdateAssignmentFlags changes single flags on existing assignments. Other flags
// keep their stored value.
func (s *Service) UpdateAssignmentFlags(ctx context.Context, roleName string, updates []FlagUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no flag updates given", httpx.ErrValidation)
	}
	normalized := make([]FlagUpdate, len(updates))
	for i, u := range updates {
		if u.PermissionID <= 0 {
			return fmt.Errorf("%w: invalid permission id", httpx.ErrValidation)
		}
		field, err := ParseField(string(u.Field))
		if err != nil {
			return err
		}
		u.Field = field
		normalized[i] = u
	}
	updates = normalized
	role, err := s.resolveRole(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateAssignmentFlags(ctx, role.ID, updates); err != nil {
		return err
	}
	meta := make(map[string]any, len(updates))
	for _, u := range updates {
		meta[strconv.FormatInt(u.PermissionID, 10)+"."+string(u.Field)] = u.Value
	}
	s.record(ctx, "role.update_flags", "role", role.ID, meta)
	return nil
}

// RemoveAssignment deletes one (role, permission) pair.
func (s *Service) RemoveAssignment(ctx context.Context, roleName string, permissionID int64) error {
	if permissionID <= 0 {
		return fmt.Errorf("%w: invalid permission id", httpx.ErrValidation)
	}
	role, err := s.resolveRole(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAssignment(ctx, role.ID, permissionID); err != nil {
		return err
	}
	s.record(ctx, "role.remove_permission", "role", role.ID, map[string]any{"permission_id": permissionID})
	return nil
}

// Capabilities returns the flags roleName holds on permissionName. A missing
// assignment yields zero flags without error.
func (s *Service) Capabilities(ctx context.Context, roleName, permissionName string) (Flags, error) {
	if strings.TrimSpace(roleName) == "" {
		return Flags{}, nil
	}
	f, err := s.repo.RoleCapabilities(ctx, roleName, permissionName)
	if errors.Is(err, httpx.ErrNotFound) {
		return Flags{}, nil
	}
	return f, err
}

// PruneDanglingAssignments removes assignments referencing deleted permissions.
func (s *Service) PruneDanglingAssignments(ctx context.Context) (int64, error) {
	n, err := s.repo.PruneAssignments(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned dangling assignments", slog.Int64("rows", n))
	}
	return n, nil
}

func (s *Service) resolveRole(ctx context.Context, name string) (RoleSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleSummary{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	role, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return RoleSummary{}, fmt.Errorf("role %q: %w", name, httpx.ErrNotFound)
		}
		return RoleSummary{}, err
	}
	return role, nil
}

func (s *Service) ensurePermissions(ctx context.Context, batch []Assignment) error {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return err
	}
	known := make(map[int64]struct{}, len(perms))
	for _, p := range perms {
		known[p.ID] = struct{}{}
	}
	for _, a := range batch {
		if a.PermissionID <= 0 {
			return fmt.Errorf("%w: invalid permission id", httpx.ErrValidation)
		}
		if _, ok := known[a.PermissionID]; !ok {
			return fmt.Errorf("permission %d: %w", a.PermissionID, httpx.ErrNotFound)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func dedupeAssignments(in []Assignment) []Assignment {
	index := make(map[int64]int, len(in))
	out := make([]Assignment, 0, len(in))
	for _, a := range in {
		if i, ok := index[a.PermissionID]; ok {
			out[i] = a
			continue
		}
		index[a.PermissionID] = len(out)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out
}

func normalizePermission(in PermissionInput) (PermissionInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return PermissionInput{}, fmt.Errorf("%w: permission name required", httpx.ErrValidation)
	}
	in.Description = strings.TrimSpace(in.Description)
	templates := make(TemplateRoles, len(in.TemplateRoles))
	for k, v := range in.TemplateRoles {
		k = strings.TrimSpace(k)
		if k == "" {
			return PermissionInput{}, fmt.Errorf("%w: template role name required", httpx.ErrValidation)
		}
		templates[k] = v
	}
	in.TemplateRoles = templates
	return in, nil
}

func normalizeRole(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return RoleInput{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	return in, nil
}
