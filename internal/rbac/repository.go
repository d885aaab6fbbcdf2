package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdm-console/mdm-console/internal/platform/db"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

// Repository defines persistence for the catalog, the registry and assignments.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, in PermissionInput) (Permission, error)
	UpdatePermission(ctx context.Context, id int64, in PermissionInput) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	ListRoles(ctx context.Context) ([]RoleSummary, error)
	GetRoleByName(ctx context.Context, name string) (RoleSummary, error)
	CreateRole(ctx context.Context, in RoleInput) (RoleSummary, error)
	UpdateRole(ctx context.Context, id int64, in RoleInput) (RoleSummary, error)
	DeleteRole(ctx context.Context, id int64) error

	ListAssignments(ctx context.Context) ([]StoredAssignment, error)
	UpsertAssignments(ctx context.Context, roleID int64, assignments []Assignment) error
	UpdateAssignmentFlags(ctx context.Context, roleID int64, updates []FlagUpdate) error
	DeleteAssignment(ctx context.Context, roleID, permissionID int64) error
	PruneAssignments(ctx context.Context) (int64, error)
	RoleCapabilities(ctx context.Context, roleName, permissionName string) (Flags, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const permissionColumns = `id, name, description, template_roles, created_at, updated_at`

func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if err != nil {
		return Permission{}, httpx.MapDBError(err)
	}
	return p, nil
}

func (r *PGRepository) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	templates, err := json.Marshal(in.TemplateRoles.Clone())
	if err != nil {
		return Permission{}, err
	}
	p, err := scanPermission(r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description, template_roles)
		VALUES ($1, $2, $3::jsonb)
		RETURNING `+permissionColumns, in.Name, in.Description, templates))
	if err != nil {
		return Permission{}, httpx.MapDBError(err)
	}
	return p, nil
}

func (r *PGRepository) UpdatePermission(ctx context.Context, id int64, in PermissionInput) (Permission, error) {
	templates, err := json.Marshal(in.TemplateRoles.Clone())
	if err != nil {
		return Permission{}, err
	}
	p, err := scanPermission(r.pool.QueryRow(ctx, `
		UPDATE permissions SET name = $2, description = $3, template_roles = $4::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING `+permissionColumns, id, in.Name, in.Description, templates))
	if err != nil {
		return Permission{}, httpx.MapDBError(err)
	}
	return p, nil
}

func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return httpx.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permission %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

const roleColumns = `id, name, priority, created_at, updated_at`

func (r *PGRepository) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY priority NULLS LAST, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleSummary
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (RoleSummary, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if err != nil {
		return RoleSummary{}, httpx.MapDBError(err)
	}
	return role, nil
}

func (r *PGRepository) CreateRole(ctx context.Context, in RoleInput) (RoleSummary, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, priority) VALUES ($1, $2)
		RETURNING `+roleColumns, in.Name, toInt8(in.Priority)))
	if err != nil {
		return RoleSummary{}, httpx.MapDBError(err)
	}
	return role, nil
}

func (r *PGRepository) UpdateRole(ctx context.Context, id int64, in RoleInput) (RoleSummary, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, priority = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns, id, in.Name, toInt8(in.Priority)))
	if err != nil {
		return RoleSummary{}, httpx.MapDBError(err)
	}
	return role, nil
}

// DeleteRole removes the role; role_permissions rows cascade and bound employees
// are unbound by the foreign key.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return httpx.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *PGRepository) ListAssignments(ctx context.Context) ([]StoredAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, permission_id, can_create, can_update, can_delete, can_export
		FROM role_permissions ORDER BY role_id, permission_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredAssignment
	for rows.Next() {
		var a StoredAssignment
		if err := rows.Scan(&a.RoleID, &a.PermissionID, &a.CanCreate, &a.CanUpdate, &a.CanDelete, &a.CanExport); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAssignments writes the batch in one transaction, overwriting existing flags.
func (r *PGRepository) UpsertAssignments(ctx context.Context, roleID int64, assignments []Assignment) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range assignments {
			batch.Queue(`
				INSERT INTO role_permissions (role_id, permission_id, can_create, can_update, can_delete, can_export)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (role_id, permission_id) DO UPDATE SET
					can_create = EXCLUDED.can_create,
					can_update = EXCLUDED.can_update,
					can_delete = EXCLUDED.can_delete,
					can_export = EXCLUDED.can_export,
					updated_at = NOW()`,
				roleID, a.PermissionID, a.CanCreate, a.CanUpdate, a.CanDelete, a.CanExport)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return httpx.MapDBError(err)
		}
		return nil
	})
}

// UpdateAssignmentFlags applies single-column updates; a missing pair aborts the batch.
func (r *PGRepository) UpdateAssignmentFlags(ctx context.Context, roleID int64, updates []FlagUpdate) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, u := range updates {
			column, err := flagColumn(u.Field)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `UPDATE role_permissions SET `+column+` = $3, updated_at = NOW() WHERE role_id = $1 AND permission_id = $2`, roleID, u.PermissionID, u.Value)
			if err != nil {
				return httpx.MapDBError(err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("assignment of permission %d: %w", u.PermissionID, httpx.ErrNotFound)
			}
		}
		return nil
	})
}

func (r *PGRepository) DeleteAssignment(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return httpx.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assignment of permission %d: %w", permissionID, httpx.ErrNotFound)
	}
	return nil
}

// PruneAssignments deletes assignments whose permission no longer exists.
func (r *PGRepository) PruneAssignments(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions rp
		WHERE NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = rp.permission_id)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func flagColumn(f Field) (string, error) {
	switch f {
	case FieldCreate, FieldUpdate, FieldDelete, FieldExport:
		return string(f), nil
	}
	return "", fmt.Errorf("%w: unknown capability %q", httpx.ErrValidation, f)
}

func scanPermission(row pgx.Row) (Permission, error) {
	var (
		p         Permission
		templates []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &templates, &createdAt, &updatedAt); err != nil {
		return Permission{}, err
	}
	p.TemplateRoles = TemplateRoles{}
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &p.TemplateRoles); err != nil {
			return Permission{}, fmt.Errorf("decode template_roles of permission %d: %w", p.ID, err)
		}
	}
	p.CreatedAt = safeTime(createdAt)
	p.UpdatedAt = safeTime(updatedAt)
	return p, nil
}

func scanRole(row pgx.Row) (RoleSummary, error) {
	var (
		role      RoleSummary
		priority  pgtype.Int8
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&role.ID, &role.Name, &priority, &createdAt, &updatedAt); err != nil {
		return RoleSummary{}, err
	}
	if priority.Valid {
		v := priority.Int64
		role.Priority = &v
	}
	role.CreatedAt = safeTime(createdAt)
	role.UpdatedAt = safeTime(updatedAt)
	return role, nil
}

func toInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func safeTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}

// RoleCapabilities returns the flags the named role holds on the named permission.
func (r *PGRepository) RoleCapabilities(ctx context.Context, roleName, permissionName string) (Flags, error) {
	var f Flags
	err := r.pool.QueryRow(ctx, `
		SELECT rp.can_create, rp.can_update, rp.can_delete, rp.can_export
		FROM role_permissions rp
		JOIN roles ro ON ro.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ro.name = $1 AND p.name = $2`, roleName, permissionName).
		Scan(&f.CanCreate, &f.CanUpdate, &f.CanDelete, &f.CanExport)
	if err != nil {
		return Flags{}, httpx.MapDBError(err)
	}
	return f, nil
}
