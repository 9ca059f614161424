package salesrep

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/httperr"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cols = `id, name, email, phone, default_commission_rate, active, created_at, updated_at`

func scan(row pgx.Row) (*SalesRep, error) {
	var s SalesRep
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.DefaultCommissionRate, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *SalesRep) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO sales_rep (name, email, phone, default_commission_rate, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		s.Name, s.Email, s.Phone, s.DefaultCommissionRate, s.Active,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return httperr.FromDB(err, "sales rep", s.Name)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*SalesRep, error) {
	s, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM sales_rep WHERE id = $1`, id))
	if err != nil {
		return nil, httperr.FromDB(err, "sales rep", id)
	}
	return s, nil
}

func (r *repoPG) Update(ctx context.Context, s *SalesRep) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE sales_rep SET name=$2, email=$3, phone=$4, default_commission_rate=$5, active=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Email, s.Phone, s.DefaultCommissionRate, s.Active,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return httperr.FromDB(err, "sales rep", s.ID)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM sales_rep WHERE id = $1`, id)
	if err != nil {
		return httperr.FromDB(err, "sales rep", id)
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("sales rep", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*SalesRep, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM sales_rep`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+cols+` FROM sales_rep%s ORDER BY name LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reps []*SalesRep
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		reps = append(reps, s)
	}
	return reps, total, rows.Err()
}
