package invoice

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

const cols = `id, invoice_number, patient_id, bill_to, invoice_date, due_date, status,
	subtotal, tax_rate, tax_amount, total, notes, created_at, updated_at`

func scan(row pgx.Row) (*Invoice, error) {
	var (
		inv      Invoice
		invoiced time.Time
		due      *time.Time
	)
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.BillTo, &invoiced, &due, &inv.Status,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.InvoiceDate = civil.DateOf(invoiced)
	inv.DueDate = dates.FromTime(due)
	return &inv, nil
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice (invoice_number, patient_id, bill_to, invoice_date, due_date, status,
			subtotal, tax_rate, tax_amount, total, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		inv.InvoiceNumber, inv.PatientID, inv.BillTo, inv.InvoiceDate.In(time.UTC), dates.ToTime(inv.DueDate), inv.Status,
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.Notes,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	return httperr.FromDB(err, "invoice", inv.InvoiceNumber)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM invoice WHERE id = $1`, id))
	if err != nil {
		return nil, httperr.FromDB(err, "invoice", id)
	}
	if inv.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repoPG) items(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, position, description, quantity, unit_price, amount
		FROM invoice_item WHERE invoice_id = $1 ORDER BY position`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Position, &it.Description, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, inv *Invoice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE invoice SET invoice_number=$2, patient_id=$3, bill_to=$4, invoice_date=$5, due_date=$6,
			status=$7, subtotal=$8, tax_rate=$9, tax_amount=$10, total=$11, notes=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		inv.ID, inv.InvoiceNumber, inv.PatientID, inv.BillTo, inv.InvoiceDate.In(time.UTC), dates.ToTime(inv.DueDate),
		inv.Status, inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.Notes,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	return httperr.FromDB(err, "invoice", inv.ID)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice WHERE id = $1`, id)
	if err != nil {
		return httperr.FromDB(err, "invoice", id)
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("invoice", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(invoice_number ILIKE $%d OR bill_to ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + cols + ` FROM invoice` + clause + ` ORDER BY invoice_date DESC, id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ReplaceItems(ctx context.Context, invoiceID int64, items []Item) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_item WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}
	for i := range items {
		it := &items[i]
		it.InvoiceID = invoiceID
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO invoice_item (invoice_id, position, description, quantity, unit_price, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			invoiceID, it.Position, it.Description, it.Quantity, it.UnitPrice, it.Amount,
		).Scan(&it.ID)
		if err != nil {
			return httperr.FromDB(err, "invoice item", it.Position)
		}
	}
	return nil
}

func (r *repoPG) NextNumber(ctx context.Context, prefix string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM invoice WHERE invoice_number LIKE $1`, prefix+"%").Scan(&n)
	return n, err
}
