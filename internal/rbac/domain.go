package rbac

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

// TemplateRole marks a permission as relevant to a role archetype.
type TemplateRole struct {
	Enabled bool `json:"enabled"`
}

// TemplateRoles maps template role names to their flag. Keys are an open set.
// A disabled entry and an absent key are different states.
type TemplateRoles map[string]TemplateRole

// Clone returns an independent copy; nil becomes an empty map.
func (t TemplateRoles) Clone() TemplateRoles {
	out := make(TemplateRoles, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// EnabledFor reports whether name is present and enabled.
func (t TemplateRoles) EnabledFor(name string) bool {
	return t[name].Enabled
}

// EnabledNames returns the sorted names of enabled entries.
func (t TemplateRoles) EnabledNames() []string {
	names := make([]string, 0, len(t))
	for k, v := range t {
		if v.Enabled {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Permission is a catalog entry.
type Permission struct {
	ID            int64
	Name          string
	Description   string
	TemplateRoles TemplateRoles
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PermissionInput carries the editable fields of a permission.
type PermissionInput struct {
	Name          string
	Description   string
	TemplateRoles TemplateRoles
}

// Field names one capability flag of an assignment.
type Field string

// Capability flags.
const (
	FieldCreate Field = "can_create"
	FieldUpdate Field = "can_update"
	FieldDelete Field = "can_delete"
	FieldExport Field = "can_export"
)

// Fields lists every flag in display order.
var Fields = []Field{FieldCreate, FieldUpdate, FieldDelete, FieldExport}

// ParseField accepts the wire name (can_create) or the short form (canCreate, create).
func ParseField(raw string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "can_create", "cancreate", "create":
		return FieldCreate, nil
	case "can_update", "canupdate", "update":
		return FieldUpdate, nil
	case "can_delete", "candelete", "delete":
		return FieldDelete, nil
	case "can_export", "canexport", "export":
		return FieldExport, nil
	}
	return "", fmt.Errorf("%w: unknown capability %q", httpx.ErrValidation, raw)
}

// Flags are the four independent capabilities of an assignment.
type Flags struct {
	CanCreate bool `json:"can_create"`
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
	CanExport bool `json:"can_export"`
}

// Get returns the value of field.
func (f Flags) Get(field Field) bool {
	switch field {
	case FieldCreate:
		return f.CanCreate
	case FieldUpdate:
		return f.CanUpdate
	case FieldDelete:
		return f.CanDelete
	case FieldExport:
		return f.CanExport
	}
	return false
}

// With returns a copy of f with exactly one field changed.
func (f Flags) With(field Field, value bool) Flags {
	switch field {
	case FieldCreate:
		f.CanCreate = value
	case FieldUpdate:
		f.CanUpdate = value
	case FieldDelete:
		f.CanDelete = value
	case FieldExport:
		f.CanExport = value
	}
	return f
}

// Assignment grants a permission to a role with explicit flags.
type Assignment struct {
	PermissionID int64
	Flags
}

// FlagUpdate changes one flag of an existing assignment.
type FlagUpdate struct {
	PermissionID int64
	Field        Field
	Value        bool
}

// StoredAssignment is a raw role_permissions row. The permission may no longer exist.
type StoredAssignment struct {
	RoleID       int64
	PermissionID int64
	Flags
}

// RoleSummary is a role without its assignments.
type RoleSummary struct {
	ID        int64
	Name      string
	Priority  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleInput carries the editable fields of a role.
type RoleInput struct {
	Name     string
	Priority *int64
}

// RolePermission is an assignment enriched with the permission's display name.
type RolePermission struct {
	Name string
	Flags
}

// Role is a role with its resolved assignments keyed by permission id.
type Role struct {
	RoleSummary
	Permissions map[int64]RolePermission
}

// ParsePriority converts user input into an optional priority. Blank input means
// no priority; anything that is not an integer is rejected.
func ParsePriority(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: role priority %q is not a number", httpx.ErrValidation, raw)
	}
	return &v, nil
}
