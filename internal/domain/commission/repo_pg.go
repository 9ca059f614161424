package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
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

// reportRows unions the assignment table with legacy single-rep treatments
// that never got an assignment row.
const reportRows = `
	SELECT t.id AS treatment_id, t.patient_id, p.first_name || ' ' || p.last_name AS patient_name,
		c.sales_rep_id, s.name AS sales_rep_name, t.treatment_number, t.treatment_date,
		t.invoice_number, t.invoice_date, t.invoice_status, t.invoice_total,
		c.commission_rate, c.commission_amount
	FROM treatment_commission c
	JOIN treatment t ON t.id = c.treatment_id
	JOIN patient p ON p.id = t.patient_id
	JOIN sales_rep s ON s.id = c.sales_rep_id
	UNION ALL
	SELECT t.id, t.patient_id, p.first_name || ' ' || p.last_name,
		t.sales_rep_id, s.name, t.treatment_number, t.treatment_date,
		t.invoice_number, t.invoice_date, t.invoice_status, t.invoice_total,
		COALESCE(t.sales_rep_commission_rate, s.default_commission_rate),
		ROUND(t.invoice_total * COALESCE(t.sales_rep_commission_rate, s.default_commission_rate) / 100, 2)
	FROM treatment t
	JOIN patient p ON p.id = t.patient_id
	JOIN sales_rep s ON s.id = t.sales_rep_id
	WHERE NOT EXISTS (SELECT 1 FROM treatment_commission c WHERE c.treatment_id = t.id)`

func (r *repoPG) Rows(ctx context.Context, f Filter) ([]ReportRow, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.SalesRepID != nil {
		args = append(args, *f.SalesRepID)
		where = append(where, fmt.Sprintf("sales_rep_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("invoice_status = $%d", len(args)))
	}
	if f.From.IsValid() {
		args = append(args, f.From.In(time.UTC))
		where = append(where, fmt.Sprintf("COALESCE(invoice_date, treatment_date) >= $%d", len(args)))
	}
	if f.To.IsValid() {
		args = append(args, f.To.In(time.UTC))
		where = append(where, fmt.Sprintf("COALESCE(invoice_date, treatment_date) <= $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT * FROM (`+reportRows+`) r`+clause+`
		ORDER BY COALESCE(invoice_date, treatment_date) NULLS LAST, sales_rep_name, treatment_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var (
			row               ReportRow
			treated, invoiced *time.Time
		)
		if err := rows.Scan(&row.TreatmentID, &row.PatientID, &row.PatientName, &row.SalesRepID,
			&row.SalesRepName, &row.TreatmentNumber, &treated, &row.InvoiceNumber, &invoiced,
			&row.InvoiceStatus, &row.InvoiceTotal, &row.CommissionRate, &row.CommissionAmount); err != nil {
			return nil, err
		}
		row.TreatmentDate = dates.FromTime(treated)
		row.InvoiceDate = dates.FromTime(invoiced)
		out = append(out, row)
	}
	return out, rows.Err()
}

const payoutCols = `id, sales_rep_id, period_start, period_end, date_paid, reference, recorded_by, created_at, updated_at`

func scanPayout(row pgx.Row) (*Payout, error) {
	var (
		p                 Payout
		start, end, paidT time.Time
	)
	if err := row.Scan(&p.ID, &p.SalesRepID, &start, &end, &paidT, &p.Reference, &p.RecordedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PeriodStart = civil.DateOf(start)
	p.PeriodEnd = civil.DateOf(end)
	p.DatePaid = civil.DateOf(paidT)
	return &p, nil
}

func (r *repoPG) UpsertPayout(ctx context.Context, p *Payout) error {
	saved, err := scanPayout(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO commission_payout (sales_rep_id, period_start, period_end, date_paid, reference, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sales_rep_id, period_start, period_end) DO UPDATE
			SET date_paid = EXCLUDED.date_paid, reference = EXCLUDED.reference,
				recorded_by = EXCLUDED.recorded_by, updated_at = NOW()
		RETURNING `+payoutCols,
		p.SalesRepID, p.PeriodStart.In(time.UTC), p.PeriodEnd.In(time.UTC), p.DatePaid.In(time.UTC), p.Reference, p.RecordedBy))
	if err != nil {
		return httperr.FromDB(err, "payout", p.SalesRepID)
	}
	*p = *saved
	return nil
}

func (r *repoPG) DeletePayout(ctx context.Context, k PayoutKey) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM commission_payout WHERE sales_rep_id = $1 AND period_start = $2 AND period_end = $3`,
		k.SalesRepID, k.PeriodStart.In(time.UTC), k.PeriodEnd.In(time.UTC))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("payout", fmt.Sprintf("%d/%s", k.SalesRepID, k.PeriodStart))
	}
	return nil
}

func (r *repoPG) Payouts(ctx context.Context, from, to civil.Date) ([]*Payout, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+payoutCols+` FROM commission_payout
		WHERE period_start BETWEEN $1 AND $2 ORDER BY period_start, sales_rep_id`,
		from.In(time.UTC), to.In(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
