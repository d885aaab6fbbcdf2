package emaildomains

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
	List(ctx context.Context, filters shared.ListFilters) ([]EmailDomain, error)
	Exists(ctx context.Context, domain string) (bool, error)
	Create(ctx context.Context, d EmailDomain) (EmailDomain, error)
	Update(ctx context.Context, id int64, d EmailDomain) (EmailDomain, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, domain, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]EmailDomain, error) {
	query := `SELECT ` + columns + ` FROM email_domains WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND domain ILIKE $1`
	}
	dir := "ASC"
	if filters.SortDir == shared.SortDesc {
		dir = "DESC"
	}
	query += ` ORDER BY domain ` + dir
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.Limit, filters.Offset())
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EmailDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) Exists(ctx context.Context, domain string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM email_domains WHERE domain = $1)`, domain).Scan(&ok)
	return ok, err
}

func (r *repository) Create(ctx context.Context, d EmailDomain) (EmailDomain, error) {
	out, err := scanDomain(r.pool.QueryRow(ctx, `INSERT INTO email_domains (domain) VALUES ($1) RETURNING `+columns, d.Name))
	if err != nil {
		return EmailDomain{}, httpx.MapDBError(err)
	}
	return out, nil
}

func (r *repository) Update(ctx context.Context, id int64, d EmailDomain) (EmailDomain, error) {
	out, err := scanDomain(r.pool.QueryRow(ctx, `UPDATE email_domains SET domain = $2, updated_at = NOW() WHERE id = $1 RETURNING `+columns, id, d.Name))
	if err != nil {
		return EmailDomain{}, httpx.MapDBError(err)
	}
	return out, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM email_domains WHERE id = $1`, id)
	if err != nil {
		return httpx.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email domain %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDomain(row scanner) (EmailDomain, error) {
	var (
		d                    EmailDomain
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&d.ID, &d.Name, &createdAt, &updatedAt); err != nil {
		return EmailDomain{}, err
	}
	d.CreatedAt = createdAt.Time
	d.UpdatedAt = updatedAt.Time
	return d, nil
}
