package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/woundcare/clinic/internal/domain/salesrep"
	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
)

// RepLookup resolves sales reps referenced by a patient.
type RepLookup interface {
	GetByID(ctx context.Context, id int64) (*salesrep.SalesRep, error)
}

type Service struct {
	patients Repository
	reps     RepLookup
	notifier cache.Notifier
	today    func() civil.Date
}

func NewService(patients Repository, reps RepLookup, notifier cache.Notifier, loc *time.Location) *Service {
	if notifier == nil {
		notifier = cache.NopNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		patients: patients,
		reps:     reps,
		notifier: notifier,
		today:    func() civil.Date { return dates.Today(loc) },
	}
}

func (s *Service) checkRep(ctx context.Context, id *int64) error {
	if id == nil || s.reps == nil {
		return nil
	}
	_, err := s.reps.GetByID(ctx, *id)
	if errors.Is(err, httperr.ErrNotFound) {
		return httperr.Invalid("salesRepId", "unknown sales rep")
	}
	return err
}

func (s *Service) apply(ctx context.Context, p *Patient, req *Request) error {
	verr := httperr.Validation("validation failed")
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if first == "" {
		verr.Add("firstName", "is required")
	}
	if last == "" {
		verr.Add("lastName", "is required")
	}
	if req.DateOfBirth != nil && req.DateOfBirth.After(s.today()) {
		verr.Add("dateOfBirth", "must not be in the future")
	}
	if req.IVRStatus != "" && !ValidIVRStatus(req.IVRStatus) {
		verr.Add("ivrStatus", "must be one of pending, submitted, approved, denied")
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	if err := s.checkRep(ctx, req.SalesRepID); err != nil {
		return err
	}

	p.FirstName, p.LastName = first, last
	p.DateOfBirth = req.DateOfBirth
	p.Phone = req.Phone
	p.Email = req.Email
	p.InsurancePrimary = req.InsurancePrimary
	p.InsuranceMemberID = req.InsuranceMemberID
	p.WoundType = req.WoundType
	p.WoundLocation = req.WoundLocation
	p.ReferralSource = req.ReferralSource
	p.SalesRepID = req.SalesRepID
	p.Notes = req.Notes
	if req.IVRStatus != "" && req.IVRStatus != p.IVRStatus {
		s.setIVR(p, req.IVRStatus, nil)
	}
	return nil
}

// setIVR moves the patient to status, stamping the submitted or approved
// date with on (or today) when none is recorded yet.
func (s *Service) setIVR(p *Patient, status string, on *civil.Date) {
	day := s.today()
	if on != nil {
		day = *on
	}
	p.IVRStatus = status
	switch status {
	case IVRSubmitted:
		if on != nil || p.IVRSubmittedDate == nil {
			p.IVRSubmittedDate = dates.Ptr(day)
		}
	case IVRApproved:
		if on != nil || p.IVRApprovedDate == nil {
			p.IVRApprovedDate = dates.Ptr(day)
		}
		if p.IVRSubmittedDate == nil {
			p.IVRSubmittedDate = dates.Ptr(day)
		}
	case IVRPending:
		p.IVRSubmittedDate = nil
		p.IVRApprovedDate = nil
	case IVRDenied:
		p.IVRApprovedDate = nil
	}
}

func (s *Service) CreatePatient(ctx context.Context, req *Request) (*Patient, error) {
	p, err := s.InsertPatient(ctx, req)
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicPatients)
	return p, nil
}

// InsertPatient creates a patient without invalidating anything. Callers
// running it inside their own transaction invalidate patients after commit.
func (s *Service) InsertPatient(ctx context.Context, req *Request) (*Patient, error) {
	p := &Patient{IVRStatus: IVRPending}
	if err := s.apply(ctx, p, req); err != nil {
		return nil, err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.patients.GetByID(ctx, p.ID)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id int64, req *Request) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, p, req); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	// Patient names appear on commission report rows.
	s.notifier.Invalidate(ctx, cache.TopicPatients, cache.TopicTreatments, cache.TopicCommissionReports)
	return s.patients.GetByID(ctx, id)
}

// UpdateIVRStatus records an insurance verification outcome.
func (s *Service) UpdateIVRStatus(ctx context.Context, id int64, req *IVRRequest) (*Patient, error) {
	if !ValidIVRStatus(req.IVRStatus) {
		return nil, httperr.Invalid("ivrStatus", "must be one of pending, submitted, approved, denied")
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setIVR(p, req.IVRStatus, req.Date)
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicPatients)
	return p, nil
}

// DeletePatient also removes the patient's treatments.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	if err := s.patients.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.Invalidate(ctx, cache.TopicPatients, cache.TopicTreatments, cache.TopicCommissionReports, cache.TopicReferrals)
	return nil
}

func (s *Service) ListPatients(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	if f.IVRStatus != "" && !ValidIVRStatus(f.IVRStatus) {
		return nil, 0, httperr.Invalid("ivrStatus", "must be one of pending, submitted, approved, denied")
	}
	return s.patients.List(ctx, f, limit, offset)
}

// RequireApproved returns the patient when its IVR is approved. Treatments
// can only be recorded for such patients.
func (s *Service) RequireApproved(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, httperr.ErrNotFound) {
		return nil, httperr.Invalid("patientId", "unknown patient")
	}
	if err != nil {
		return nil, err
	}
	if p.IVRStatus != IVRApproved {
		return nil, httperr.Invalid("patientId", "patient IVR is not approved")
	}
	return p, nil
}
