package auth

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, name, email, password_hash, role_name, is_active`

// FindByEmail fetches an account by case-insensitive email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM employees WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanAccount(row)
}

// FindByID fetches an account by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM employees WHERE id = $1`, id))
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a    Account
		role pgtype.Text
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role, &a.IsActive); err != nil {
		return nil, httpx.MapDBError(err)
	}
	if role.Valid {
		v := role.String
		a.Role = &v
	}
	return &a, nil
}

var _ Repository = (*PGRepository)(nil)
