package referral

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

const selectReferral = `
	SELECT r.id, r.patient_name, r.referring_provider, r.facility, r.wound_type, r.insurance,
		r.sales_rep_id, s.name, r.status, r.position, r.notes, r.patient_id, r.created_at, r.updated_at
	FROM referral r
	LEFT JOIN sales_rep s ON s.id = r.sales_rep_id`

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.PatientName, &ref.ReferringProvider, &ref.Facility, &ref.WoundType,
		&ref.Insurance, &ref.SalesRepID, &ref.SalesRepName, &ref.Status, &ref.Position, &ref.Notes,
		&ref.PatientID, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func collect(rows pgx.Rows) ([]*Referral, error) {
	defer rows.Close()
	var out []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral (patient_name, referring_provider, facility, wound_type, insurance,
			sales_rep_id, status, position, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM referral WHERE status = $7), $8)
		RETURNING id, position, created_at, updated_at`,
		ref.PatientName, ref.ReferringProvider, ref.Facility, ref.WoundType, ref.Insurance,
		ref.SalesRepID, ref.Status, ref.Notes,
	).Scan(&ref.ID, &ref.Position, &ref.CreatedAt, &ref.UpdatedAt)
	return httperr.FromDB(err, "referral", ref.PatientName)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Referral, error) {
	ref, err := scanReferral(r.conn(ctx).QueryRow(ctx, selectReferral+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, httperr.FromDB(err, "referral", id)
	}
	return ref, nil
}

func (r *repoPG) Update(ctx context.Context, ref *Referral) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE referral SET patient_name=$2, referring_provider=$3, facility=$4, wound_type=$5,
			insurance=$6, sales_rep_id=$7, notes=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		ref.ID, ref.PatientName, ref.ReferringProvider, ref.Facility, ref.WoundType,
		ref.Insurance, ref.SalesRepID, ref.Notes,
	).Scan(&ref.UpdatedAt)
	return httperr.FromDB(err, "referral", ref.ID)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM referral WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("referral", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.SalesRepID != nil {
		args = append(args, *f.SalesRepID)
		where = append(where, fmt.Sprintf("r.sales_rep_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("r.patient_name ILIKE $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM referral r`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(selectReferral+clause+` ORDER BY r.created_at DESC, r.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	refs, err := collect(rows)
	return refs, total, err
}

func (r *repoPG) Board(ctx context.Context) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx, selectReferral+` ORDER BY r.position, r.id`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) ColumnIDs(ctx context.Context, status string) ([]int64, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id FROM referral WHERE status = $1 ORDER BY position, id FOR UPDATE`, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *repoPG) SetColumn(ctx context.Context, status string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET status = $1, position = t.ord - 1, updated_at = NOW()
		FROM unnest($2::bigint[]) WITH ORDINALITY AS t(id, ord)
		WHERE referral.id = t.id
			AND (referral.status <> $1 OR referral.position <> t.ord - 1)`,
		status, ids)
	return err
}

func (r *repoPG) SetPatient(ctx context.Context, id, patientID int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE referral SET patient_id = $2, updated_at = NOW() WHERE id = $1`, id, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("referral", id)
	}
	return nil
}
