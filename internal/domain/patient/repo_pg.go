package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
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

const selectPatient = `
	SELECT p.id, p.first_name, p.last_name, p.date_of_birth, p.phone, p.email,
		p.insurance_primary, p.insurance_member_id, p.wound_type, p.wound_location,
		p.referral_source, p.sales_rep_id, s.name, p.ivr_status, p.ivr_submitted_date,
		p.ivr_approved_date, p.notes, p.created_at, p.updated_at
	FROM patient p
	LEFT JOIN sales_rep s ON s.id = p.sales_rep_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p                      Patient
		dob, submitted, approv *time.Time
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &dob, &p.Phone, &p.Email,
		&p.InsurancePrimary, &p.InsuranceMemberID, &p.WoundType, &p.WoundLocation,
		&p.ReferralSource, &p.SalesRepID, &p.SalesRepName, &p.IVRStatus, &submitted,
		&approv, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DateOfBirth = dates.FromTime(dob)
	p.IVRSubmittedDate = dates.FromTime(submitted)
	p.IVRApprovedDate = dates.FromTime(approv)
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (first_name, last_name, date_of_birth, phone, email,
			insurance_primary, insurance_member_id, wound_type, wound_location,
			referral_source, sales_rep_id, ivr_status, ivr_submitted_date, ivr_approved_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`,
		p.FirstName, p.LastName, dates.ToTime(p.DateOfBirth), p.Phone, p.Email,
		p.InsurancePrimary, p.InsuranceMemberID, p.WoundType, p.WoundLocation,
		p.ReferralSource, p.SalesRepID, p.IVRStatus, dates.ToTime(p.IVRSubmittedDate),
		dates.ToTime(p.IVRApprovedDate), p.Notes,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return httperr.FromDB(err, "patient", p.FullName())
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, selectPatient+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, httperr.FromDB(err, "patient", id)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, phone=$5, email=$6,
			insurance_primary=$7, insurance_member_id=$8, wound_type=$9, wound_location=$10,
			referral_source=$11, sales_rep_id=$12, ivr_status=$13, ivr_submitted_date=$14,
			ivr_approved_date=$15, notes=$16, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, dates.ToTime(p.DateOfBirth), p.Phone, p.Email,
		p.InsurancePrimary, p.InsuranceMemberID, p.WoundType, p.WoundLocation,
		p.ReferralSource, p.SalesRepID, p.IVRStatus, dates.ToTime(p.IVRSubmittedDate),
		dates.ToTime(p.IVRApprovedDate), p.Notes,
	).Scan(&p.UpdatedAt)
	return httperr.FromDB(err, "patient", p.ID)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return httperr.FromDB(err, "patient", id)
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("patient", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(p.first_name || ' ' || p.last_name) ILIKE $%d", len(args)))
	}
	if f.IVRStatus != "" {
		args = append(args, f.IVRStatus)
		where = append(where, fmt.Sprintf("p.ivr_status = $%d", len(args)))
	}
	if f.SalesRepID != nil {
		args = append(args, *f.SalesRepID)
		where = append(where, fmt.Sprintf("p.sales_rep_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient p`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(selectPatient+clause+` ORDER BY p.last_name, p.first_name, p.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
