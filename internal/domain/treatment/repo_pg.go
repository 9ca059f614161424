package treatment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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

const selectTreatment = `
	SELECT t.id, t.patient_id, p.first_name || ' ' || p.last_name, t.treatment_number, t.treatment_date,
		t.graft_type, t.q_code, t.wound_size_sq_cm, t.price_per_sq_cm, t.total_revenue, t.invoice_total,
		t.total_commission_pool, t.clinic_commission, t.invoice_status, t.invoice_date, t.invoice_number,
		t.payable_date, t.payment_date, t.sales_rep_id, t.sales_rep_commission_rate, t.notes,
		t.created_at, t.updated_at
	FROM treatment t
	JOIN patient p ON p.id = t.patient_id`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var (
		t                                     Treatment
		treated, invoiced, payable, paymentAt *time.Time
	)
	err := row.Scan(&t.ID, &t.PatientID, &t.PatientName, &t.TreatmentNumber, &treated,
		&t.GraftType, &t.QCode, &t.WoundSizeSqCm, &t.PricePerSqCm, &t.TotalRevenue, &t.InvoiceTotal,
		&t.TotalCommissionPool, &t.ClinicCommission, &t.InvoiceStatus, &invoiced, &t.InvoiceNumber,
		&payable, &paymentAt, &t.SalesRepID, &t.SalesRepCommissionRate, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.TreatmentDate = dates.FromTime(treated)
	t.InvoiceDate = dates.FromTime(invoiced)
	t.PayableDate = dates.FromTime(payable)
	t.PaymentDate = dates.FromTime(paymentAt)
	t.Commissions = []Assignment{}
	return &t, nil
}

func (r *repoPG) Create(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment (patient_id, treatment_number, treatment_date, graft_type, q_code,
			wound_size_sq_cm, price_per_sq_cm, total_revenue, invoice_total, total_commission_pool,
			clinic_commission, invoice_status, invoice_date, invoice_number, payable_date, payment_date,
			sales_rep_id, sales_rep_commission_rate, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at`,
		t.PatientID, t.TreatmentNumber, dates.ToTime(t.TreatmentDate), t.GraftType, t.QCode,
		t.WoundSizeSqCm, t.PricePerSqCm, t.TotalRevenue, t.InvoiceTotal, t.TotalCommissionPool,
		t.ClinicCommission, t.InvoiceStatus, dates.ToTime(t.InvoiceDate), t.InvoiceNumber,
		dates.ToTime(t.PayableDate), dates.ToTime(t.PaymentDate), t.SalesRepID, t.SalesRepCommissionRate, t.Notes,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return httperr.FromDB(err, "treatment", t.TreatmentNumber)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, selectTreatment+` WHERE t.id = $1`, id))
	if err != nil {
		return nil, httperr.FromDB(err, "treatment", id)
	}
	if err := r.loadCommissions(ctx, []*Treatment{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repoPG) Update(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatment SET patient_id=$2, treatment_number=$3, treatment_date=$4, graft_type=$5,
			q_code=$6, wound_size_sq_cm=$7, price_per_sq_cm=$8, total_revenue=$9, invoice_total=$10,
			total_commission_pool=$11, clinic_commission=$12, invoice_status=$13, invoice_date=$14,
			invoice_number=$15, payable_date=$16, payment_date=$17, sales_rep_id=$18,
			sales_rep_commission_rate=$19, notes=$20, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.PatientID, t.TreatmentNumber, dates.ToTime(t.TreatmentDate), t.GraftType,
		t.QCode, t.WoundSizeSqCm, t.PricePerSqCm, t.TotalRevenue, t.InvoiceTotal,
		t.TotalCommissionPool, t.ClinicCommission, t.InvoiceStatus, dates.ToTime(t.InvoiceDate),
		t.InvoiceNumber, dates.ToTime(t.PayableDate), dates.ToTime(t.PaymentDate), t.SalesRepID,
		t.SalesRepCommissionRate, t.Notes,
	).Scan(&t.UpdatedAt)
	return httperr.FromDB(err, "treatment", t.ID)
}

func (r *repoPG) UpdateStatus(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatment SET invoice_status=$2, payment_date=$3, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.InvoiceStatus, dates.ToTime(t.PaymentDate),
	).Scan(&t.UpdatedAt)
	return httperr.FromDB(err, "treatment", t.ID)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("treatment", id)
	}
	return nil
}

func whereClause(f Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("t.patient_id = $%d", len(args)))
	}
	if f.SalesRepID != nil {
		args = append(args, *f.SalesRepID)
		where = append(where, fmt.Sprintf(`(t.sales_rep_id = $%[1]d OR EXISTS (
			SELECT 1 FROM treatment_commission c WHERE c.treatment_id = t.id AND c.sales_rep_id = $%[1]d))`, len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("t.invoice_status = $%d", len(args)))
	}
	if f.From.IsValid() {
		args = append(args, f.From.In(time.UTC))
		where = append(where, fmt.Sprintf("t.invoice_date >= $%d", len(args)))
	}
	if f.To.IsValid() {
		args = append(args, f.To.In(time.UTC))
		where = append(where, fmt.Sprintf("t.invoice_date <= $%d", len(args)))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// List pages through treatments, newest first. A limit of 0 returns every
// match.
func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Treatment, int, error) {
	clause, args := whereClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatment t`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := selectTreatment + clause + ` ORDER BY t.treatment_date DESC NULLS LAST, t.id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadCommissions(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repoPG) loadCommissions(ctx context.Context, ts []*Treatment) error {
	if len(ts) == 0 {
		return nil
	}
	byID := make(map[int64]*Treatment, len(ts))
	ids := make([]int64, 0, len(ts))
	for _, t := range ts {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.treatment_id, c.sales_rep_id, s.name, c.commission_rate, c.commission_amount
		FROM treatment_commission c
		JOIN sales_rep s ON s.id = c.sales_rep_id
		WHERE c.treatment_id = ANY($1)
		ORDER BY c.treatment_id, c.id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.TreatmentID, &a.SalesRepID, &a.SalesRepName, &a.CommissionRate, &a.CommissionAmount); err != nil {
			return err
		}
		t := byID[a.TreatmentID]
		t.Commissions = append(t.Commissions, a)
	}
	return rows.Err()
}

func (r *repoPG) ReplaceCommissions(ctx context.Context, treatmentID int64, as []Assignment) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment_commission WHERE treatment_id = $1`, treatmentID); err != nil {
		return err
	}
	for i := range as {
		a := &as[i]
		a.TreatmentID = treatmentID
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO treatment_commission (treatment_id, sales_rep_id, commission_rate, commission_amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			treatmentID, a.SalesRepID, a.CommissionRate, a.CommissionAmount,
		).Scan(&a.ID)
		if err != nil {
			return httperr.FromDB(err, "commission assignment", a.SalesRepID)
		}
	}
	return nil
}

func (r *repoPG) NextNumber(ctx context.Context, patientID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(treatment_number), 0) + 1 FROM treatment WHERE patient_id = $1`, patientID).Scan(&n)
	return n, err
}

func (r *repoPG) Overdue(ctx context.Context, today civil.Date) (int, decimal.Decimal, error) {
	var (
		n   int
		sum decimal.Decimal
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(invoice_total), 0)
		FROM treatment
		WHERE invoice_status <> 'closed' AND payable_date < $1`, today.In(time.UTC)).Scan(&n, &sum)
	return n, sum, err
}
