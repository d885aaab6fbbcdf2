package console

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

// RoleDraft stages a role and a set of assignments before anything is sent.
type RoleDraft struct {
	Name     string
	Priority string

	board    *Board
	existing *rbac.RoleSummary
	staged   map[int64]rbac.Flags
}

// NewRoleDraft starts a draft for a new role.
func (b *Board) NewRoleDraft() *RoleDraft {
	return &RoleDraft{board: b, staged: map[int64]rbac.Flags{}}
}

// EditRoleDraft starts a draft for an existing role. Staged assignments are
// added on top of what the role already holds.
func (b *Board) EditRoleDraft(name string) (*RoleDraft, error) {
	role, ok := b.Role(name)
	if !ok {
		return nil, notFoundError("role %q not found", name)
	}
	d := b.NewRoleDraft()
	d.Name = role.Name
	d.Priority = formatPriority(role.Priority)
	summary := role.RoleSummary
	d.existing = &summary
	return d, nil
}

// Editing reports whether the draft updates an existing role.
func (d *RoleDraft) Editing() bool { return d.existing != nil }

// Stage selects a catalog permission with all flags off. Staging twice keeps the flags.
func (d *RoleDraft) Stage(permissionID int64) error {
	if _, ok := d.board.Permission(permissionID); !ok {
		return notFoundError("permission %d not in catalog", permissionID)
	}
	if _, ok := d.staged[permissionID]; !ok {
		d.staged[permissionID] = rbac.Flags{}
	}
	return nil
}

// Unstage drops a staged permission.
func (d *RoleDraft) Unstage(permissionID int64) {
	delete(d.staged, permissionID)
}

// Toggle stages an unstaged permission or unstages a staged one.
func (d *RoleDraft) Toggle(permissionID int64) error {
	if d.IsStaged(permissionID) {
		d.Unstage(permissionID)
		return nil
	}
	return d.Stage(permissionID)
}

// IsStaged reports whether permissionID is staged.
func (d *RoleDraft) IsStaged(permissionID int64) bool {
	_, ok := d.staged[permissionID]
	return ok
}

// SetFlag sets one flag of a staged permission.
func (d *RoleDraft) SetFlag(permissionID int64, field rbac.Field, value bool) error {
	flags, ok := d.staged[permissionID]
	if !ok {
		return validationError("permission %d is not staged", permissionID)
	}
	d.staged[permissionID] = flags.With(field, value)
	return nil
}

// Staged returns the staged assignments ordered by permission id.
func (d *RoleDraft) Staged() []rbac.Assignment {
	out := make([]rbac.Assignment, 0, len(d.staged))
	for id, flags := range d.staged {
		out = append(out, rbac.Assignment{PermissionID: id, Flags: flags})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out
}

// Commit saves the role, assigns the staged permissions and refreshes the
// board. When the role is saved but the assignment fails the error is a
// *PartialCommitError.
func (d *RoleDraft) Commit(ctx context.Context) (rbac.RoleSummary, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return rbac.RoleSummary{}, validationError("role name is required")
	}
	priority, err := rbac.ParsePriority(d.Priority)
	if err != nil {
		return rbac.RoleSummary{}, validationError("role priority %q is not a number", strings.TrimSpace(d.Priority))
	}
	in := rbac.RoleInput{Name: name, Priority: priority}

	var saved rbac.RoleSummary
	if d.existing != nil {
		saved, err = d.board.api.UpdateRole(ctx, d.existing.ID, in)
	} else {
		saved, err = d.board.api.CreateRole(ctx, in)
	}
	if err != nil {
		return rbac.RoleSummary{}, err
	}
	if saved.Name == "" {
		saved.Name = name
	}

	var commitErr error
	if staged := d.Staged(); len(staged) > 0 {
		if err := d.board.api.AssignPermissions(ctx, saved.Name, staged); err != nil {
			commitErr = &PartialCommitError{Role: saved, Err: err}
		} else {
			d.staged = map[int64]rbac.Flags{}
		}
	}
	d.existing = &saved

	if err := d.board.Refresh(ctx); err != nil {
		d.board.logger.Warn("refresh after role commit", slog.String("role", saved.Name), slog.Any("error", err))
	}
	return saved, commitErr
}

func formatPriority(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}
