package employees

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdm-console/mdm-console/internal/platform/db"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

// RepositoryPort defines data access methods for employees.
type RepositoryPort interface {
	List(ctx context.Context) ([]Employee, error)
	ListWithoutRole(ctx context.Context) ([]Employee, error)
	Get(ctx context.Context, id int64) (Employee, error)
	Create(ctx context.Context, e Employee, passwordHash string) (Employee, error)
	Update(ctx context.Context, id int64, in UpdateInput) (Employee, error)
	Delete(ctx context.Context, id int64) error
	AssignRole(ctx context.Context, id int64, role *string) (Employee, error)
	BulkAssignRole(ctx context.Context, ids []int64, role string) ([]int64, error)
}

// Repository implements RepositoryPort using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const employeeColumns = `id, name, email, company, role_name, is_active, created_at, updated_at`

func (r *Repository) List(ctx context.Context) ([]Employee, error) {
	return r.query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name, id`)
}

func (r *Repository) ListWithoutRole(ctx context.Context) ([]Employee, error) {
	return r.query(ctx, `SELECT `+employeeColumns+` FROM employees WHERE role_name IS NULL ORDER BY name, id`)
}

func (r *Repository) Get(ctx context.Context, id int64) (Employee, error) {
	e, err := scanEmployee(r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if err != nil {
		return Employee{}, httpx.MapDBError(err)
	}
	return e, nil
}

func (r *Repository) Create(ctx context.Context, e Employee, passwordHash string) (Employee, error) {
	out, err := scanEmployee(r.pool.QueryRow(ctx, `
		INSERT INTO employees (name, email, password_hash, company)
		VALUES ($1, $2, $3, $4)
		RETURNING `+employeeColumns, e.Name, strings.ToLower(e.Email), passwordHash, toText(e.Company)))
	if err != nil {
		return Employee{}, httpx.MapDBError(err)
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) (Employee, error) {
	var email pgtype.Text
	if in.Email != nil {
		email = pgtype.Text{String: strings.ToLower(*in.Email), Valid: true}
	}
	var active pgtype.Bool
	if in.IsActive != nil {
		active = pgtype.Bool{Bool: *in.IsActive, Valid: true}
	}
	out, err := scanEmployee(r.pool.QueryRow(ctx, `
		UPDATE employees SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			company = CASE WHEN $4::boolean THEN NULLIF($5, '') ELSE company END,
			is_active = COALESCE($6, is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+employeeColumns,
		id, toText(in.Name), email, in.Company != nil, derefOr(in.Company, ""), active))
	if err != nil {
		return Employee{}, httpx.MapDBError(err)
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return httpx.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employee %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// AssignRole binds role (or unbinds when nil). An unknown role violates the
// foreign key and surfaces as not found.
func (r *Repository) AssignRole(ctx context.Context, id int64, role *string) (Employee, error) {
	out, err := scanEmployee(r.pool.QueryRow(ctx, `
		UPDATE employees SET role_name = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+employeeColumns, id, toText(role)))
	if err != nil {
		return Employee{}, httpx.MapDBError(err)
	}
	return out, nil
}

// BulkAssignRole binds role to every listed employee in one transaction and
// returns the ids that exist.
func (r *Repository) BulkAssignRole(ctx context.Context, ids []int64, role string) ([]int64, error) {
	var updated []int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE employees SET role_name = $2, updated_at = NOW()
			WHERE id = ANY($1)
			RETURNING id`, ids, role)
		if err != nil {
			return err
		}
		updated, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		return err
	})
	if err != nil {
		return nil, httpx.MapDBError(err)
	}
	return updated, nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Employee, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var (
		e                    Employee
		company, role        pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &company, &role, &e.IsActive, &createdAt, &updatedAt); err != nil {
		return Employee{}, err
	}
	if company.Valid {
		v := company.String
		e.Company = &v
	}
	if role.Valid {
		v := role.String
		e.Role = &v
	}
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time
	return e, nil
}

func toText(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *v, Valid: true}
}

func derefOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
