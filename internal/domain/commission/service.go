package commission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"github.com/woundcare/clinic/internal/platform/auth"
	"github.com/woundcare/clinic/internal/platform/blobstore"
	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/export"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type Service struct {
	repo     Repository
	notifier cache.Notifier
	store    cache.Store
	cacheTTL time.Duration
	archiver *blobstore.Archiver
	today    func() civil.Date
}

type Config struct {
	Location *time.Location
	CacheTTL time.Duration
}

func NewService(repo Repository, notifier cache.Notifier, store cache.Store, archiver *blobstore.Archiver, cfg Config) *Service {
	if notifier == nil {
		notifier = cache.NopNotifier{}
	}
	if store == nil {
		store = cache.NopStore{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		store:    store,
		cacheTTL: cfg.CacheTTL,
		archiver: archiver,
		today:    func() civil.Date { return dates.Today(loc) },
	}
}

func repPart(id *int64) string {
	if id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}

func datePart(d civil.Date) string {
	if !d.IsValid() {
		return "-"
	}
	return d.String()
}

// Report lists commission line items.
func (s *Service) Report(ctx context.Context, f Filter) ([]ReportRow, error) {
	if f.From.IsValid() && f.To.IsValid() && f.To.Before(f.From) {
		return nil, httperr.Invalid("to", "must not be before from")
	}
	key := cache.Key(db.ClinicFromContext(ctx), cache.TopicCommissionReports, "rows",
		repPart(f.SalesRepID), f.Status, datePart(f.From), datePart(f.To))
	rows, err := cache.Remember(ctx, s.store, key, s.cacheTTL, func(ctx context.Context) ([]ReportRow, error) {
		return s.repo.Rows(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ReportRow{}
	}
	return rows, nil
}

// Month resolves an optional YYYY-MM to the first of that month, defaulting
// to the current month.
func (s *Service) Month(raw string) (civil.Date, error) {
	if raw == "" {
		return dates.FirstOfMonth(s.today()), nil
	}
	m, err := dates.ParseMonth(raw)
	if err != nil {
		return civil.Date{}, httperr.Invalid("month", err.Error())
	}
	return m, nil
}

// Periods derives the month's payout periods and attaches recorded payouts.
func (s *Service) Periods(ctx context.Context, month civil.Date, salesRepID *int64) ([]Period, error) {
	month = dates.FirstOfMonth(month)
	key := cache.Key(db.ClinicFromContext(ctx), cache.TopicCommissionReports, "periods", month.String(), repPart(salesRepID))
	periods, err := cache.Remember(ctx, s.store, key, s.cacheTTL, func(ctx context.Context) ([]Period, error) {
		last := dates.LastOfMonth(month)
		rows, err := s.repo.Rows(ctx, Filter{SalesRepID: salesRepID, From: month, To: last})
		if err != nil {
			return nil, err
		}
		periods := Aggregate(rows, month)

		payouts, err := s.repo.Payouts(ctx, month, last)
		if err != nil {
			return nil, err
		}
		paid := make(map[PayoutKey]*Payout, len(payouts))
		for _, p := range payouts {
			paid[PayoutKey{SalesRepID: p.SalesRepID, PeriodStart: p.PeriodStart, PeriodEnd: p.PeriodEnd}] = p
		}
		for i := range periods {
			p := &periods[i]
			if po, ok := paid[PayoutKey{SalesRepID: p.SalesRepID, PeriodStart: p.PeriodStart, PeriodEnd: p.PeriodEnd}]; ok {
				d := po.DatePaid
				p.DatePaid = &d
				p.Reference = po.Reference
			}
		}
		return periods, nil
	})
	if err != nil {
		return nil, err
	}
	if periods == nil {
		periods = []Period{}
	}
	return periods, nil
}

// PutPayout records (or re-records) a period as paid.
func (s *Service) PutPayout(ctx context.Context, req *PayoutRequest) (*Payout, error) {
	verr := httperr.Validation("validation failed")
	if req.PeriodStart == nil {
		verr.Add("periodStart", "is required")
	}
	if req.PeriodEnd == nil {
		verr.Add("periodEnd", "is required")
	}
	if req.DatePaid == nil {
		verr.Add("datePaid", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if !IsWindow(*req.PeriodStart, *req.PeriodEnd) {
		return nil, httperr.Invalid("periodEnd", "period must be the 1st-15th or the 16th-last day of a month")
	}
	p := &Payout{
		SalesRepID:  req.SalesRepID,
		PeriodStart: *req.PeriodStart,
		PeriodEnd:   *req.PeriodEnd,
		DatePaid:    *req.DatePaid,
		Reference:   req.Reference,
		RecordedBy:  auth.Actor(ctx),
	}
	if err := s.repo.UpsertPayout(ctx, p); err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicCommissionReports)
	return p, nil
}

// Payouts lists the payouts recorded against month's periods.
func (s *Service) Payouts(ctx context.Context, month civil.Date) ([]*Payout, error) {
	month = dates.FirstOfMonth(month)
	payouts, err := s.repo.Payouts(ctx, month, dates.LastOfMonth(month))
	if err != nil {
		return nil, err
	}
	if payouts == nil {
		payouts = []*Payout{}
	}
	return payouts, nil
}

func (s *Service) DeletePayout(ctx context.Context, k PayoutKey) error {
	if err := s.repo.DeletePayout(ctx, k); err != nil {
		return err
	}
	s.notifier.Invalidate(ctx, cache.TopicCommissionReports)
	return nil
}

var reportHeader = []string{
	"Payment Date", "Period", "Sales Rep", "Patient", "Treatment #", "Invoice #",
	"Invoice Date", "Invoice Status", "Invoice Total", "Commission Rate", "Commission Amount", "Date Paid",
}

// Table lays the periods out one row per line item.
func Table(periods []Period) export.Table {
	t := export.Table{Sheet: "Commissions", Header: reportHeader}
	for _, p := range periods {
		span := p.PeriodStart.String() + " to " + p.PeriodEnd.String()
		for _, r := range p.Rows {
			t.Rows = append(t.Rows, []export.Cell{
				export.Text(p.PaymentDate.String()),
				export.Text(span),
				export.Text(r.SalesRepName),
				export.Text(r.PatientName),
				export.Int(int64(r.TreatmentNumber)),
				export.OptText(r.InvoiceNumber),
				export.Date(r.InvoiceDate),
				export.Text(r.InvoiceStatus),
				export.Currency(r.InvoiceTotal),
				export.Percent(r.CommissionRate),
				export.Currency(r.CommissionAmount),
				export.Date(p.DatePaid),
			})
		}
	}
	return t
}

// Export renders the month's periods and archives a copy.
func (s *Service) Export(ctx context.Context, month civil.Date, salesRepID *int64, format string) (*export.File, error) {
	periods, err := s.Periods(ctx, month, salesRepID)
	if err != nil {
		return nil, err
	}
	t := Table(periods)

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
	f.Name = export.FileName("commission-report", s.today(), format)
	s.archiver.Save(ctx, blobstore.KindCommissionReport, f.Name, f.ContentType, f.Data)
	return f, nil
}
