package salesrep

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/money"
)

var maxRate = decimal.NewFromInt(100)

type Service struct {
	reps     Repository
	notifier cache.Notifier
}

func NewService(reps Repository, notifier cache.Notifier) *Service {
	if notifier == nil {
		notifier = cache.NopNotifier{}
	}
	return &Service{reps: reps, notifier: notifier}
}

// ValidateRate checks a commission percentage.
func ValidateRate(field string, rate decimal.Decimal) *httperr.ValidationError {
	if rate.IsNegative() || rate.GreaterThan(maxRate) {
		return httperr.Invalid(field, "must be between 0 and 100")
	}
	if !money.HasCents(rate) {
		return httperr.Invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

func (s *Service) apply(rep *SalesRep, req *Request) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return httperr.Invalid("name", "is required")
	}
	rep.Name = name
	rep.Email = req.Email
	rep.Phone = req.Phone
	if req.DefaultCommissionRate != nil {
		if verr := ValidateRate("defaultCommissionRate", *req.DefaultCommissionRate); verr != nil {
			return verr
		}
		rep.DefaultCommissionRate = *req.DefaultCommissionRate
	}
	if req.Active != nil {
		rep.Active = *req.Active
	}
	return nil
}

func (s *Service) CreateSalesRep(ctx context.Context, req *Request) (*SalesRep, error) {
	rep := &SalesRep{Active: true, DefaultCommissionRate: decimal.Zero}
	if err := s.apply(rep, req); err != nil {
		return nil, err
	}
	if err := s.reps.Create(ctx, rep); err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicSalesReps)
	return rep, nil
}

func (s *Service) GetSalesRep(ctx context.Context, id int64) (*SalesRep, error) {
	return s.reps.GetByID(ctx, id)
}

// UpdateSalesRep replaces the editable fields. A renamed rep changes the
// grouping key of commission reports, so those are invalidated too.
func (s *Service) UpdateSalesRep(ctx context.Context, id int64, req *Request) (*SalesRep, error) {
	rep, err := s.reps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(rep, req); err != nil {
		return nil, err
	}
	if err := s.reps.Update(ctx, rep); err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicSalesReps, cache.TopicCommissionReports)
	return rep, nil
}

// DeleteSalesRep fails with a conflict while treatments still carry a
// commission assignment for the rep.
func (s *Service) DeleteSalesRep(ctx context.Context, id int64) error {
	if err := s.reps.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.Invalidate(ctx, cache.TopicSalesReps, cache.TopicPatients, cache.TopicReferrals, cache.TopicCommissionReports)
	return nil
}

func (s *Service) ListSalesReps(ctx context.Context, f Filter, limit, offset int) ([]*SalesRep, int, error) {
	return s.reps.List(ctx, f, limit, offset)
}
