package console

import (
	"context"
	"strings"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

// PermissionForm edits a catalog entry before it is sent.
type PermissionForm struct {
	Name          string
	Description   string
	TemplateRoles rbac.TemplateRoles

	board *Board
}

// NewPermissionForm returns an empty form.
func (b *Board) NewPermissionForm() *PermissionForm {
	return &PermissionForm{board: b, TemplateRoles: rbac.TemplateRoles{}}
}

// EditPermissionForm returns a form pre-filled from the catalog.
func (b *Board) EditPermissionForm(id int64) (*PermissionForm, error) {
	p, ok := b.Permission(id)
	if !ok {
		return nil, notFoundError("permission %d not in catalog", id)
	}
	return &PermissionForm{board: b, Name: p.Name, Description: p.Description, TemplateRoles: p.TemplateRoles.Clone()}, nil
}

// AddTemplateRole adds name as an enabled template. Blank or existing names are ignored.
func (f *PermissionForm) AddTemplateRole(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if f.TemplateRoles == nil {
		f.TemplateRoles = rbac.TemplateRoles{}
	}
	if _, ok := f.TemplateRoles[name]; ok {
		return false
	}
	f.TemplateRoles[name] = rbac.TemplateRole{Enabled: true}
	return true
}

// RemoveTemplateRole deletes the key entirely.
func (f *PermissionForm) RemoveTemplateRole(name string) {
	delete(f.TemplateRoles, name)
}

// SetTemplateEnabled flips an existing template without removing it.
func (f *PermissionForm) SetTemplateEnabled(name string, enabled bool) error {
	if _, ok := f.TemplateRoles[name]; !ok {
		return notFoundError("template role %q not on this permission", name)
	}
	f.TemplateRoles[name] = rbac.TemplateRole{Enabled: enabled}
	return nil
}

func (f *PermissionForm) input() (rbac.PermissionInput, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return rbac.PermissionInput{}, validationError("permission name is required")
	}
	return rbac.PermissionInput{
		Name:          name,
		Description:   strings.TrimSpace(f.Description),
		TemplateRoles: f.TemplateRoles.Clone(),
	}, nil
}

// Create adds the permission and reloads the catalog.
func (f *PermissionForm) Create(ctx context.Context) (rbac.Permission, error) {
	in, err := f.input()
	if err != nil {
		return rbac.Permission{}, err
	}
	p, err := f.board.api.CreatePermission(ctx, in)
	if err != nil {
		return rbac.Permission{}, err
	}
	return p, f.board.ReloadCatalog(ctx)
}

// Update replaces permission id with the form's fields and reloads the catalog.
func (f *PermissionForm) Update(ctx context.Context, id int64) (rbac.Permission, error) {
	in, err := f.input()
	if err != nil {
		return rbac.Permission{}, err
	}
	p, err := f.board.api.UpdatePermission(ctx, id, in)
	if err != nil {
		return rbac.Permission{}, err
	}
	return p, f.board.ReloadCatalog(ctx)
}
