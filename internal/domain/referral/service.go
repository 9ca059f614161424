package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/woundcare/clinic/internal/domain/patient"
	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/httperr"
)

// PatientCreator is implemented by *patient.Service. InsertPatient must not
// invalidate caches; ConvertReferral does that once its transaction commits.
type PatientCreator interface {
	InsertPatient(ctx context.Context, req *patient.Request) (*patient.Patient, error)
}

type Service struct {
	referrals Repository
	patients  PatientCreator
	reps      patient.RepLookup
	tx        db.TxFunc
	notifier  cache.Notifier
}

func NewService(referrals Repository, patients PatientCreator, reps patient.RepLookup, tx db.TxFunc, notifier cache.Notifier) *Service {
	if tx == nil {
		tx = db.NoTx
	}
	if notifier == nil {
		notifier = cache.NopNotifier{}
	}
	return &Service{referrals: referrals, patients: patients, reps: reps, tx: tx, notifier: notifier}
}

func (s *Service) apply(ctx context.Context, ref *Referral, req *Request) error {
	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		return httperr.Invalid("patientName", "is required")
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		return httperr.Invalid("status", "unknown status")
	}
	if req.SalesRepID != nil && s.reps != nil {
		if _, err := s.reps.GetByID(ctx, *req.SalesRepID); errors.Is(err, httperr.ErrNotFound) {
			return httperr.Invalid("salesRepId", "unknown sales rep")
		} else if err != nil {
			return err
		}
	}
	ref.PatientName = name
	ref.ReferringProvider = req.ReferringProvider
	ref.Facility = req.Facility
	ref.WoundType = req.WoundType
	ref.Insurance = req.Insurance
	ref.SalesRepID = req.SalesRepID
	ref.Notes = req.Notes
	return nil
}

func (s *Service) CreateReferral(ctx context.Context, req *Request) (*Referral, error) {
	ref := &Referral{Status: StatusNew}
	if err := s.apply(ctx, ref, req); err != nil {
		return nil, err
	}
	if req.Status != "" {
		ref.Status = req.Status
	}
	if err := s.referrals.Create(ctx, ref); err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicReferrals)
	return s.referrals.GetByID(ctx, ref.ID)
}

func (s *Service) GetReferral(ctx context.Context, id int64) (*Referral, error) {
	return s.referrals.GetByID(ctx, id)
}

// UpdateReferral edits a card. A status change appends the card to the end
// of its new column.
func (s *Service) UpdateReferral(ctx context.Context, id int64, req *Request) (*Referral, error) {
	err := s.tx(ctx, func(ctx context.Context) error {
		ref, err := s.referrals.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, ref, req); err != nil {
			return err
		}
		if err := s.referrals.Update(ctx, ref); err != nil {
			return err
		}
		if req.Status != "" && req.Status != ref.Status {
			return s.move(ctx, ref, req.Status, -1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicReferrals)
	return s.referrals.GetByID(ctx, id)
}

// DeleteReferral removes the card and closes the gap in its column.
func (s *Service) DeleteReferral(ctx context.Context, id int64) error {
	err := s.tx(ctx, func(ctx context.Context) error {
		ref, err := s.referrals.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.referrals.Delete(ctx, id); err != nil {
			return err
		}
		ids, err := s.referrals.ColumnIDs(ctx, ref.Status)
		if err != nil {
			return err
		}
		return s.referrals.SetColumn(ctx, ref.Status, ids)
	})
	if err != nil {
		return err
	}
	s.notifier.Invalidate(ctx, cache.TopicReferrals)
	return nil
}

func (s *Service) ListReferrals(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, httperr.Invalid("status", "unknown status")
	}
	return s.referrals.List(ctx, f, limit, offset)
}

// Board groups every card into its column. All columns are present, in
// board order, even when empty.
func (s *Service) Board(ctx context.Context) ([]Column, error) {
	refs, err := s.referrals.Board(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string][]*Referral, len(Statuses))
	for _, ref := range refs {
		byStatus[ref.Status] = append(byStatus[ref.Status], ref)
	}
	cols := make([]Column, 0, len(Statuses))
	for _, st := range Statuses {
		cards := byStatus[st]
		if cards == nil {
			cards = []*Referral{}
		}
		cols = append(cols, Column{Status: st, Referrals: cards})
	}
	return cols, nil
}

// MoveReferral places the card at req.Position in req.Status and renumbers
// the source and target columns. Either every card lands in its new place
// or nothing changes.
func (s *Service) MoveReferral(ctx context.Context, id int64, req *MoveRequest) (*Referral, error) {
	if !ValidStatus(req.Status) {
		return nil, httperr.Invalid("status", "unknown status")
	}
	if req.Position < 0 {
		return nil, httperr.Invalid("position", "must not be negative")
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		ref, err := s.referrals.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return s.move(ctx, ref, req.Status, req.Position)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicReferrals)
	return s.referrals.GetByID(ctx, id)
}

// move must run inside a transaction. A negative position appends.
func (s *Service) move(ctx context.Context, ref *Referral, status string, position int) error {
	src, err := s.referrals.ColumnIDs(ctx, ref.Status)
	if err != nil {
		return err
	}
	src = without(src, ref.ID)

	if status == ref.Status {
		return s.referrals.SetColumn(ctx, status, insertAt(src, ref.ID, position))
	}

	dst, err := s.referrals.ColumnIDs(ctx, status)
	if err != nil {
		return err
	}
	if err := s.referrals.SetColumn(ctx, ref.Status, src); err != nil {
		return err
	}
	return s.referrals.SetColumn(ctx, status, insertAt(without(dst, ref.ID), ref.ID, position))
}

func without(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// insertAt clamps pos to the column length.
func insertAt(ids []int64, id int64, pos int) []int64 {
	if pos < 0 || pos > len(ids) {
		pos = len(ids)
	}
	out := make([]int64, 0, len(ids)+1)
	out = append(out, ids[:pos]...)
	out = append(out, id)
	return append(out, ids[pos:]...)
}

// ConvertReferral creates a patient from the card and links the two.
func (s *Service) ConvertReferral(ctx context.Context, id int64, req *ConvertRequest) (*patient.Patient, error) {
	var created *patient.Patient
	err := s.tx(ctx, func(ctx context.Context) error {
		ref, err := s.referrals.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if ref.PatientID != nil {
			return fmt.Errorf("referral %d already converted to patient %d: %w", id, *ref.PatientID, httperr.ErrConflict)
		}

		first, last := splitName(ref.PatientName)
		if req != nil && req.FirstName != "" {
			first = req.FirstName
		}
		if req != nil && req.LastName != "" {
			last = req.LastName
		}
		preq := &patient.Request{
			FirstName:        first,
			LastName:         last,
			WoundType:        ref.WoundType,
			InsurancePrimary: ref.Insurance,
			ReferralSource:   referralSource(ref),
			SalesRepID:       ref.SalesRepID,
			Notes:            ref.Notes,
		}
		if req != nil {
			preq.DateOfBirth = req.DateOfBirth
		}
		if preq.LastName == "" {
			return httperr.Invalid("lastName", "patient name has no last name; supply lastName")
		}

		created, err = s.patients.InsertPatient(ctx, preq)
		if err != nil {
			return err
		}
		return s.referrals.SetPatient(ctx, id, created.ID)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Invalidate(ctx, cache.TopicReferrals, cache.TopicPatients)
	return created, nil
}

// splitName treats the last word as the family name.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func referralSource(ref *Referral) *string {
	var parts []string
	if ref.ReferringProvider != nil && *ref.ReferringProvider != "" {
		parts = append(parts, *ref.ReferringProvider)
	}
	if ref.Facility != nil && *ref.Facility != "" {
		parts = append(parts, *ref.Facility)
	}
	if len(parts) == 0 {
		return nil
	}
	src := strings.Join(parts, ", ")
	return &src
}
