package companies

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdm-console/mdm-console/internal/masterdata/shared"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error)
	Get(ctx context.Context, name string) (Company, error)
	Create(ctx context.Context, company Company) (Company, error)
	Rename(ctx context.Context, name string, company Company) (Company, error)
	Delete(ctx context.Context, name string) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// List uses a dynamic query because of the optional search and paging.
func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error) {
	query := `SELECT name, created_at, updated_at FROM companies WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM companies WHERE 1=1`
	args := []any{}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND name ILIKE $1`
		countQuery += ` AND name ILIKE $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.Limit, filters.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	return companies, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, name string) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT name, created_at, updated_at FROM companies WHERE name = $1`, name))
	if err != nil {
		return Company{}, httpx.MapDBError(err)
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, company Company) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `
		INSERT INTO companies (name) VALUES ($1)
		RETURNING name, created_at, updated_at`, company.Name))
	if err != nil {
		return Company{}, httpx.MapDBError(err)
	}
	return c, nil
}

// Rename changes the key; employees follow through ON UPDATE CASCADE.
func (r *repository) Rename(ctx context.Context, name string, company Company) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `
		UPDATE companies SET name = $2, updated_at = NOW() WHERE name = $1
		RETURNING name, created_at, updated_at`, name, company.Name))
	if err != nil {
		return Company{}, httpx.MapDBError(err)
	}
	return c, nil
}

func (r *repository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE name = $1`, name)
	if err != nil {
		return httpx.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %q: %w", name, httpx.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompany(row scanner) (Company, error) {
	var (
		c                    Company
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&c.Name, &createdAt, &updatedAt); err != nil {
		return Company{}, err
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time
	}
	return c, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
