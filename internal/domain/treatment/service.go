package treatment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/internal/domain/patient"
	"github.com/woundcare/clinic/internal/domain/salesrep"
	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
	"github.com/woundcare/clinic/pkg/money"
)

// PatientGate is implemented by *patient.Service.
type PatientGate interface {
	RequireApproved(ctx context.Context, id int64) (*patient.Patient, error)
}

// Invalidated by every treatment mutation.
var mutationTopics = []string{cache.TopicTreatments, cache.TopicPatients, cache.TopicCommissionReports}

type Service struct {
	treatments Repository
	patients   PatientGate
	reps       patient.RepLookup
	tx         db.TxFunc
	notifier   cache.Notifier
	store      cache.Store
	cacheTTL   time.Duration
	today      func() civil.Date
}

type Config struct {
	Location *time.Location
	CacheTTL time.Duration
}

func NewService(treatments Repository, patients PatientGate, reps patient.RepLookup, tx db.TxFunc, notifier cache.Notifier, store cache.Store, cfg Config) *Service {
	if tx == nil {
		tx = db.NoTx
	}
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
		treatments: treatments,
		patients:   patients,
		reps:       reps,
		tx:         tx,
		notifier:   notifier,
		store:      store,
		cacheTTL:   cfg.CacheTTL,
		today:      func() civil.Date { return dates.Today(loc) },
	}
}

func validateRequest(req *Request) error {
	verr := httperr.Validation("validation failed")
	if strings.TrimSpace(req.GraftType) == "" {
		verr.Add("graftType", "is required")
	}
	if strings.TrimSpace(req.QCode) == "" {
		verr.Add("qCode", "is required")
	}
	if !req.WoundSizeSqCm.IsPositive() {
		verr.Add("woundSizeSqCm", "must be greater than 0")
	} else if !money.HasCents(req.WoundSizeSqCm) {
		verr.Add("woundSizeSqCm", "must have at most 2 decimal places")
	}
	if req.PricePerSqCm.IsNegative() {
		verr.Add("pricePerSqCm", "must not be negative")
	} else if !money.HasCents(req.PricePerSqCm) {
		verr.Add("pricePerSqCm", "must have at most 2 decimal places")
	}
	if req.InvoiceStatus != "" && !ValidStatus(req.InvoiceStatus) {
		verr.Add("invoiceStatus", "must be one of open, payable, closed")
	}
	if req.SalesRepCommissionRate != nil {
		if e := salesrep.ValidateRate("salesRepCommissionRate", *req.SalesRepCommissionRate); e != nil {
			verr.Add("salesRepCommissionRate", e.Message)
		}
	}
	seen := make(map[int64]bool, len(req.Commissions))
	for i, a := range req.Commissions {
		field := fmt.Sprintf("commissions[%d]", i)
		if seen[a.SalesRepID] {
			verr.Add(field+".salesRepId", "sales rep assigned twice")
		}
		seen[a.SalesRepID] = true
		if a.CommissionRate != nil {
			if e := salesrep.ValidateRate(field+".commissionRate", *a.CommissionRate); e != nil {
				verr.Add(field+".commissionRate", e.Message)
			}
		}
	}
	if req.PayableDate != nil && req.InvoiceDate != nil && req.PayableDate.Before(*req.InvoiceDate) {
		verr.Add("payableDate", "must not be before invoiceDate")
	}
	return verr.OrNil()
}

func (s *Service) rep(ctx context.Context, id int64, field string) (*salesrep.SalesRep, error) {
	r, err := s.reps.GetByID(ctx, id)
	if errors.Is(err, httperr.ErrNotFound) {
		return nil, httperr.Invalid(field, "unknown sales rep")
	}
	return r, err
}

// assignments resolves the requested reps. Without explicit assignments the
// legacy single-rep fields yield one assignment.
func (s *Service) assignments(ctx context.Context, req *Request) ([]Assignment, *decimal.Decimal, error) {
	if len(req.Commissions) > 0 {
		out := make([]Assignment, 0, len(req.Commissions))
		for i, a := range req.Commissions {
			r, err := s.rep(ctx, a.SalesRepID, fmt.Sprintf("commissions[%d].salesRepId", i))
			if err != nil {
				return nil, nil, err
			}
			rate := r.DefaultCommissionRate
			if a.CommissionRate != nil {
				rate = *a.CommissionRate
			}
			out = append(out, Assignment{SalesRepID: r.ID, SalesRepName: r.Name, CommissionRate: rate})
		}
		return out, req.SalesRepCommissionRate, nil
	}
	if req.SalesRepID == nil {
		return []Assignment{}, nil, nil
	}
	r, err := s.rep(ctx, *req.SalesRepID, "salesRepId")
	if err != nil {
		return nil, nil, err
	}
	rate := r.DefaultCommissionRate
	if req.SalesRepCommissionRate != nil {
		rate = *req.SalesRepCommissionRate
	}
	return []Assignment{{SalesRepID: r.ID, SalesRepName: r.Name, CommissionRate: rate}}, &rate, nil
}

// build copies the request onto t and recomputes everything derived. prev
// is the stored record on update and nil on create.
func (s *Service) build(ctx context.Context, t *Treatment, req *Request, prev *Treatment) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if prev == nil || prev.PatientID != req.PatientID {
		if _, err := s.patients.RequireApproved(ctx, req.PatientID); err != nil {
			return err
		}
	}
	as, legacyRate, err := s.assignments(ctx, req)
	if err != nil {
		return err
	}

	t.PatientID = req.PatientID
	t.TreatmentDate = req.TreatmentDate
	t.GraftType = strings.TrimSpace(req.GraftType)
	t.QCode = strings.ToUpper(strings.TrimSpace(req.QCode))
	t.WoundSizeSqCm = req.WoundSizeSqCm
	t.PricePerSqCm = req.PricePerSqCm
	t.InvoiceDate = req.InvoiceDate
	t.InvoiceNumber = req.InvoiceNumber
	t.SalesRepID = req.SalesRepID
	t.SalesRepCommissionRate = legacyRate
	t.Notes = req.Notes
	t.Commissions = as

	if req.TreatmentNumber > 0 {
		t.TreatmentNumber = req.TreatmentNumber
	} else if prev == nil || prev.PatientID != req.PatientID {
		n, err := s.treatments.NextNumber(ctx, req.PatientID)
		if err != nil {
			return err
		}
		t.TreatmentNumber = n
	}

	t.PayableDate = payableDate(req, prev)

	status := req.InvoiceStatus
	if status == "" {
		status = StatusOpen
		if prev != nil {
			status = prev.InvoiceStatus
		}
	}
	payment := req.PaymentDate
	if payment == nil && prev != nil && status == StatusClosed && prev.InvoiceStatus == StatusClosed {
		payment = prev.PaymentDate
	}
	if err := Transition(t, status, payment); err != nil {
		return err
	}

	Derive(t)
	return nil
}

// payableDate defaults to invoice date + 30 days on create, and follows a
// changed invoice date on update unless the client sent its own payable date.
func payableDate(req *Request, prev *Treatment) *civil.Date {
	if req.InvoiceDate == nil {
		return req.PayableDate
	}
	if prev == nil {
		if req.PayableDate != nil {
			return req.PayableDate
		}
		return dates.Ptr(DefaultPayable(*req.InvoiceDate))
	}
	invoiceChanged := !dates.Equal(prev.InvoiceDate, req.InvoiceDate)
	clientOverride := req.PayableDate != nil && !dates.Equal(req.PayableDate, prev.PayableDate)
	if invoiceChanged && !clientOverride {
		return dates.Ptr(DefaultPayable(*req.InvoiceDate))
	}
	if req.PayableDate == nil && !invoiceChanged {
		return prev.PayableDate
	}
	return req.PayableDate
}

func (s *Service) CreateTreatment(ctx context.Context, req *Request) (*Treatment, error) {
	t := &Treatment{}
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.build(ctx, t, req, nil); err != nil {
			return err
		}
		if err := s.treatments.Create(ctx, t); err != nil {
			return err
		}
		return s.treatments.ReplaceCommissions(ctx, t.ID, t.Commissions)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, mutationTopics...)
	t.IsOverdue = IsOverdue(t, s.today())
	return t, nil
}

func (s *Service) GetTreatment(ctx context.Context, id int64) (*Treatment, error) {
	t, err := s.treatments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.IsOverdue = IsOverdue(t, s.today())
	return t, nil
}

// UpdateTreatment replaces the editable fields. Concurrent edits are last
// write wins.
func (s *Service) UpdateTreatment(ctx context.Context, id int64, req *Request) (*Treatment, error) {
	var t *Treatment
	err := s.tx(ctx, func(ctx context.Context) error {
		prev, err := s.treatments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		cur := *prev
		if err := s.build(ctx, &cur, req, prev); err != nil {
			return err
		}
		if err := s.treatments.Update(ctx, &cur); err != nil {
			return err
		}
		if err := s.treatments.ReplaceCommissions(ctx, cur.ID, cur.Commissions); err != nil {
			return err
		}
		t = &cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, mutationTopics...)
	t.IsOverdue = IsOverdue(t, s.today())
	return t, nil
}

// UpdateInvoiceStatus applies one lifecycle transition. On any failure the
// stored record is left as it was.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id int64, req *StatusRequest) (*Treatment, error) {
	if !ValidStatus(req.InvoiceStatus) {
		return nil, httperr.Invalid("invoiceStatus", "must be one of open, payable, closed")
	}
	if req.InvoiceStatus == StatusClosed && req.PaymentDate == nil {
		return nil, ErrPaymentDateRequired
	}
	t, err := s.treatments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(t, req.InvoiceStatus, req.PaymentDate); err != nil {
		return nil, err
	}
	if err := s.treatments.UpdateStatus(ctx, t); err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, mutationTopics...)
	t.IsOverdue = IsOverdue(t, s.today())
	return t, nil
}

func (s *Service) DeleteTreatment(ctx context.Context, id int64) error {
	if err := s.treatments.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.Invalidate(ctx, mutationTopics...)
	return nil
}

func (s *Service) ListTreatments(ctx context.Context, f Filter, limit, offset int) ([]*Treatment, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, httperr.Invalid("invoiceStatus", "must be one of open, payable, closed")
	}
	ts, total, err := s.treatments.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	today := s.today()
	for _, t := range ts {
		t.IsOverdue = IsOverdue(t, today)
	}
	return ts, total, nil
}

// AllTreatments returns every match with its overdue flag.
func (s *Service) AllTreatments(ctx context.Context, f Filter) ([]*Treatment, error) {
	ts, _, err := s.ListTreatments(ctx, f, 0, 0)
	return ts, err
}

// Metrics computes the dashboard figures, read through the cache. Keys
// carry today's date so the overdue split rolls over at midnight.
func (s *Service) Metrics(ctx context.Context, from, to civil.Date) (Metrics, error) {
	if from.IsValid() && to.IsValid() && to.Before(from) {
		return Metrics{}, httperr.Invalid("to", "must not be before from")
	}
	today := s.today()
	key := cache.Key(db.ClinicFromContext(ctx), cache.TopicTreatments, "metrics", today.String(), bound(from), bound(to))
	return cache.Remember(ctx, s.store, key, s.cacheTTL, func(ctx context.Context) (Metrics, error) {
		ts, _, err := s.treatments.List(ctx, Filter{}, 0, 0)
		if err != nil {
			return Metrics{}, err
		}
		return ComputeMetrics(ts, today, from, to), nil
	})
}

func bound(d civil.Date) string {
	if !d.IsValid() {
		return "-"
	}
	return d.String()
}

// Overdue serves the daily sweep for the clinic bound to ctx.
func (s *Service) Overdue(ctx context.Context, today civil.Date) (int, decimal.Decimal, error) {
	return s.treatments.Overdue(ctx, today)
}
