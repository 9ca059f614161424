package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/internal/domain/patient"
	"github.com/woundcare/clinic/internal/platform/blobstore"
	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/export"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
	"github.com/woundcare/clinic/pkg/money"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrVoid rejects edits to a voided invoice.
var ErrVoid = fmt.Errorf("void invoices cannot be changed: %w", httperr.ErrConflict)

// PatientLookup is implemented by *patient.Service.
type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*patient.Patient, error)
}

type Service struct {
	invoices   Repository
	patients   PatientLookup
	tx         db.TxFunc
	notifier   cache.Notifier
	archiver   *blobstore.Archiver
	clinicName string
	today      func() civil.Date
}

type Config struct {
	Location *time.Location
	// ClinicName heads the PDF.
	ClinicName string
}

func NewService(invoices Repository, patients PatientLookup, tx db.TxFunc, notifier cache.Notifier, archiver *blobstore.Archiver, cfg Config) *Service {
	if tx == nil {
		tx = db.NoTx
	}
	if notifier == nil {
		notifier = cache.NopNotifier{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	name := cfg.ClinicName
	if name == "" {
		name = "Wound Care Clinic"
	}
	return &Service{
		invoices:   invoices,
		patients:   patients,
		tx:         tx,
		notifier:   notifier,
		archiver:   archiver,
		clinicName: name,
		today:      func() civil.Date { return dates.Today(loc) },
	}
}

func (s *Service) apply(ctx context.Context, inv *Invoice, req *Request) error {
	verr := httperr.Validation("validation failed")
	if strings.TrimSpace(req.BillTo) == "" {
		verr.Add("billTo", "is required")
	}
	if req.InvoiceDate == nil || !req.InvoiceDate.IsValid() {
		verr.Add("invoiceDate", "is required")
	} else if req.DueDate != nil && req.DueDate.Before(*req.InvoiceDate) {
		verr.Add("dueDate", "must not be before invoiceDate")
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		verr.Add("status", "must be one of draft, sent, paid, void")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.Description) == "" {
			verr.Add(fmt.Sprintf("items[%d].description", i), "is required")
		}
		if !it.Quantity.IsPositive() {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		} else if !money.HasCents(it.Quantity) {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), "must have at most 2 decimal places")
		}
		if it.UnitPrice.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
		} else if !money.HasCents(it.UnitPrice) {
			verr.Add(fmt.Sprintf("items[%d].unitPrice", i), "must have at most 2 decimal places")
		}
	}
	if req.TaxRate != nil {
		if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
			verr.Add("taxRate", "must be between 0 and 100")
		} else if !money.HasCents(*req.TaxRate) {
			verr.Add("taxRate", "must have at most 2 decimal places")
		}
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	if req.PatientID != nil && s.patients != nil {
		if _, err := s.patients.GetPatient(ctx, *req.PatientID); err != nil {
			if errors.Is(err, httperr.ErrNotFound) {
				return httperr.Invalid("patientId", "unknown patient")
			}
			return err
		}
	}

	if req.InvoiceNumber != "" {
		inv.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	}
	inv.PatientID = req.PatientID
	inv.BillTo = strings.TrimSpace(req.BillTo)
	inv.InvoiceDate = *req.InvoiceDate
	inv.DueDate = req.DueDate
	if req.Status != "" {
		inv.Status = req.Status
	}
	if req.TaxRate != nil {
		inv.TaxRate = *req.TaxRate
	}
	inv.Notes = req.Notes

	inv.Items = make([]Item, len(req.Items))
	for i, it := range req.Items {
		inv.Items[i] = Item{
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	Compute(inv)
	return nil
}

// nextNumber assigns INV-YYYYMM-NNNN from the invoice date.
func (s *Service) nextNumber(ctx context.Context, on civil.Date) (string, error) {
	prefix := fmt.Sprintf("INV-%04d%02d-", on.Year, int(on.Month))
	n, err := s.invoices.NextNumber(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, n), nil
}

func (s *Service) CreateInvoice(ctx context.Context, req *Request) (*Invoice, error) {
	inv := &Invoice{Status: StatusDraft, TaxRate: decimal.Zero}
	if err := s.apply(ctx, inv, req); err != nil {
		return nil, err
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		if inv.InvoiceNumber == "" {
			n, err := s.nextNumber(ctx, inv.InvoiceDate)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = n
		}
		if err := s.invoices.Create(ctx, inv); err != nil {
			return err
		}
		return s.invoices.ReplaceItems(ctx, inv.ID, inv.Items)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicInvoices)
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) UpdateInvoice(ctx context.Context, id int64, req *Request) (*Invoice, error) {
	var inv *Invoice
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if inv, err = s.invoices.GetByID(ctx, id); err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return ErrVoid
		}
		if err := s.apply(ctx, inv, req); err != nil {
			return err
		}
		if err := s.invoices.Update(ctx, inv); err != nil {
			return err
		}
		return s.invoices.ReplaceItems(ctx, inv.ID, inv.Items)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicInvoices)
	return inv, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id int64) error {
	if err := s.invoices.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.Invalidate(ctx, cache.TopicInvoices)
	return nil
}

func (s *Service) ListInvoices(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, httperr.Invalid("status", "must be one of draft, sent, paid, void")
	}
	return s.invoices.List(ctx, f, limit, offset)
}

var exportHeader = []string{"Invoice #", "Invoice Date", "Due Date", "Bill To", "Status", "Subtotal", "Tax Rate", "Tax", "Total"}

// Table lays invoices out one row each.
func Table(invs []*Invoice) export.Table {
	t := export.Table{Sheet: "Invoices", Header: exportHeader}
	for _, inv := range invs {
		invoiced := inv.InvoiceDate
		t.Rows = append(t.Rows, []export.Cell{
			export.Text(inv.InvoiceNumber),
			export.Date(&invoiced),
			export.Date(inv.DueDate),
			export.Text(inv.BillTo),
			export.Text(inv.Status),
			export.Currency(inv.Subtotal),
			export.Percent(inv.TaxRate),
			export.Currency(inv.TaxAmount),
			export.Currency(inv.Total),
		})
	}
	return t
}

// Export renders every invoice matching status and archives a copy.
func (s *Service) Export(ctx context.Context, status, format string) (*export.File, error) {
	invs, _, err := s.ListInvoices(ctx, Filter{Status: status}, 0, 0)
	if err != nil {
		return nil, err
	}
	t := Table(invs)

	f := &export.File{}
	switch format {
	case FormatCSV:
		f.ContentType = export.ContentTypeCSV
		f.Data = export.CSV(t)
	case FormatXLSX:
		f.ContentType = export.ContentTypeXLSX
		if f.Data, err = export.XLSX(t); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	f.Name = export.FileName("invoices", s.today(), format)
	s.archiver.Save(ctx, blobstore.KindInvoices, f.Name, f.ContentType, f.Data)
	return f, nil
}

// PDF renders one invoice and archives a copy.
func (s *Service) PDF(ctx context.Context, id int64) (*export.File, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := RenderPDF(inv, s.clinicName)
	if err != nil {
		return nil, err
	}
	f := &export.File{
		Name:        "invoice-" + fileSafe(inv.InvoiceNumber) + ".pdf",
		ContentType: export.ContentTypePDF,
		Data:        data,
	}
	s.archiver.Save(ctx, blobstore.KindInvoicePDF, f.Name, f.ContentType, f.Data)
	return f, nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
