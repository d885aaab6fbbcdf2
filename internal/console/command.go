package console

import (
	"context"
	"log/slog"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

// Command is an optimistic local change paired with the remote call that
// confirms it.
type Command interface {
	Apply()
	Rollback()
	Execute(ctx context.Context) error
}

// Executor applies a command, runs it, and rolls it back when the remote call fails.
type Executor struct {
	Logger *slog.Logger
}

// Run applies cmd then executes it. On failure the local change is undone and
// the error returned. Nothing is retried.
func (e Executor) Run(ctx context.Context, cmd Command) error {
	cmd.Apply()
	if err := cmd.Execute(ctx); err != nil {
		cmd.Rollback()
		if e.Logger != nil {
			e.Logger.Warn("command rolled back", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// FlagToggle flips one flag of one assignment.
type FlagToggle struct {
	board        *Board
	RoleName     string
	PermissionID int64
	Field        rbac.Field
	Prev         bool
	Next         bool
}

// Apply sets the new value locally.
func (t *FlagToggle) Apply() {
	t.board.setFlag(t.RoleName, t.PermissionID, t.Field, t.Next)
}

// Rollback restores the value captured when the command was built.
func (t *FlagToggle) Rollback() {
	t.board.setFlag(t.RoleName, t.PermissionID, t.Field, t.Prev)
}

// Execute sends the single-field update.
func (t *FlagToggle) Execute(ctx context.Context) error {
	return t.board.api.UpdateAssignmentFlags(ctx, t.RoleName, []rbac.FlagUpdate{{
		PermissionID: t.PermissionID,
		Field:        t.Field,
		Value:        t.Next,
	}})
}

// NewFlagToggle builds a toggle for an existing assignment, capturing its current value.
func (b *Board) NewFlagToggle(roleName string, permissionID int64, field rbac.Field) (*FlagToggle, error) {
	return b.newFlagCommand(roleName, permissionID, field, nil)
}

// NewFlagSet builds a command that sets field to value on an existing assignment.
func (b *Board) NewFlagSet(roleName string, permissionID int64, field rbac.Field, value bool) (*FlagToggle, error) {
	return b.newFlagCommand(roleName, permissionID, field, &value)
}

func (b *Board) newFlagCommand(roleName string, permissionID int64, field rbac.Field, value *bool) (*FlagToggle, error) {
	role, ok := b.Role(roleName)
	if !ok {
		return nil, notFoundError("role %q not found", roleName)
	}
	rp, ok := role.Permissions[permissionID]
	if !ok {
		return nil, notFoundError("permission %d is not assigned to %q", permissionID, roleName)
	}
	prev := rp.Get(field)
	next := !prev
	if value != nil {
		next = *value
	}
	return &FlagToggle{board: b, RoleName: roleName, PermissionID: permissionID, Field: field, Prev: prev, Next: next}, nil
}

// ToggleFlag flips field optimistically and rolls back if the server rejects it.
func (b *Board) ToggleFlag(ctx context.Context, roleName string, permissionID int64, field rbac.Field) error {
	cmd, err := b.NewFlagToggle(roleName, permissionID, field)
	if err != nil {
		return err
	}
	return b.executor.Run(ctx, cmd)
}

// SetFlag sets field to value optimistically and rolls back if the server rejects it.
func (b *Board) SetFlag(ctx context.Context, roleName string, permissionID int64, field rbac.Field, value bool) error {
	cmd, err := b.NewFlagSet(roleName, permissionID, field, value)
	if err != nil {
		return err
	}
	return b.executor.Run(ctx, cmd)
}
