package patient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/woundcare/clinic/internal/domain/salesrep"
	"github.com/woundcare/clinic/internal/platform/httperr"
)

type mockRepo struct {
	patients map[int64]*Patient
	nextID   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[int64]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, httperr.NotFound("patient", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return httperr.NotFound("patient", p.ID)
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.patients[id]; !ok {
		return httperr.NotFound("patient", id)
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for id := int64(1); id <= m.nextID; id++ {
		p, ok := m.patients[id]
		if !ok {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.FullName()), strings.ToLower(f.Search)) {
			continue
		}
		if f.IVRStatus != "" && p.IVRStatus != f.IVRStatus {
			continue
		}
		if f.SalesRepID != nil && (p.SalesRepID == nil || *p.SalesRepID != *f.SalesRepID) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockReps map[int64]*salesrep.SalesRep

func (m mockReps) GetByID(_ context.Context, id int64) (*salesrep.SalesRep, error) {
	r, ok := m[id]
	if !ok {
		return nil, httperr.NotFound("sales rep", id)
	}
	return r, nil
}

type recordingNotifier struct {
	topics []string
}

func (r *recordingNotifier) Invalidate(_ context.Context, topics ...string) {
	r.topics = append(r.topics, topics...)
}

var testToday = civil.Date{Year: 2024, Month: 6, Day: 20}

func newTestService() (*Service, *mockRepo, *recordingNotifier) {
	repo := newMockRepo()
	n := &recordingNotifier{}
	reps := mockReps{3: {ID: 3, Name: "Dana Cole"}}
	svc := NewService(repo, reps, n, time.UTC)
	svc.today = func() civil.Date { return testToday }
	return svc, repo, n
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreatePatient(t *testing.T) {
	svc, _, n := newTestService()
	p, err := svc.CreatePatient(context.Background(), &Request{FirstName: " Ada ", LastName: "Lovelace", SalesRepID: int64Ptr(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FirstName != "Ada" || p.IVRStatus != IVRPending {
		t.Errorf("unexpected patient %+v", p)
	}
	if len(n.topics) != 1 || n.topics[0] != "patients" {
		t.Errorf("expected patients invalidated, got %v", n.topics)
	}
}

func TestInsertPatient_DoesNotInvalidate(t *testing.T) {
	svc, repo, n := newTestService()
	p, err := svc.InsertPatient(context.Background(), &Request{FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), p.ID); err != nil {
		t.Errorf("patient not stored: %v", err)
	}
	if len(n.topics) != 0 {
		t.Errorf("expected no invalidation, got %v", n.topics)
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	future := civil.Date{Year: 2030, Month: 1, Day: 1}
	_, err := svc.CreatePatient(context.Background(), &Request{FirstName: "", LastName: "X", DateOfBirth: &future})
	var ve *httperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Fields["firstName"] == "" || ve.Fields["dateOfBirth"] == "" {
		t.Errorf("expected both fields reported, got %v", ve.Fields)
	}
}

func TestCreatePatient_UnknownRep(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreatePatient(context.Background(), &Request{FirstName: "A", LastName: "B", SalesRepID: int64Ptr(99)})
	var ve *httperr.ValidationError
	if !errors.As(err, &ve) || ve.Fields["salesRepId"] == "" {
		t.Fatalf("expected salesRepId error, got %v", err)
	}
}

func TestCreatePatient_WithIVRStatus(t *testing.T) {
	svc, _, _ := newTestService()
	p, err := svc.CreatePatient(context.Background(), &Request{FirstName: "A", LastName: "B", IVRStatus: IVRApproved})
	if err != nil {
		t.Fatal(err)
	}
	if p.IVRApprovedDate == nil || *p.IVRApprovedDate != testToday {
		t.Errorf("expected approved date stamped today, got %v", p.IVRApprovedDate)
	}
}

func TestUpdateIVRStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, _ := svc.CreatePatient(ctx, &Request{FirstName: "A", LastName: "B"})

	submitted := civil.Date{Year: 2024, Month: 6, Day: 1}
	got, err := svc.UpdateIVRStatus(ctx, p.ID, &IVRRequest{IVRStatus: IVRSubmitted, Date: &submitted})
	if err != nil {
		t.Fatal(err)
	}
	if got.IVRStatus != IVRSubmitted || *got.IVRSubmittedDate != submitted {
		t.Errorf("unexpected patient %+v", got)
	}

	got, err = svc.UpdateIVRStatus(ctx, p.ID, &IVRRequest{IVRStatus: IVRApproved})
	if err != nil {
		t.Fatal(err)
	}
	if *got.IVRSubmittedDate != submitted || *got.IVRApprovedDate != testToday {
		t.Errorf("expected submitted kept and approved today, got %+v", got)
	}

	got, _ = svc.UpdateIVRStatus(ctx, p.ID, &IVRRequest{IVRStatus: IVRPending})
	if got.IVRSubmittedDate != nil || got.IVRApprovedDate != nil {
		t.Errorf("expected dates cleared on pending, got %+v", got)
	}
}

func TestUpdateIVRStatus_Invalid(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.UpdateIVRStatus(context.Background(), 1, &IVRRequest{IVRStatus: "maybe"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := svc.UpdateIVRStatus(context.Background(), 1, &IVRRequest{IVRStatus: IVRDenied}); !errors.Is(err, httperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequireApproved(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, _ := svc.CreatePatient(ctx, &Request{FirstName: "A", LastName: "B"})

	if _, err := svc.RequireApproved(ctx, p.ID); err == nil {
		t.Fatal("pending patient must be rejected")
	}
	svc.UpdateIVRStatus(ctx, p.ID, &IVRRequest{IVRStatus: IVRApproved})
	if _, err := svc.RequireApproved(ctx, p.ID); err != nil {
		t.Fatalf("approved patient rejected: %v", err)
	}
	var ve *httperr.ValidationError
	if _, err := svc.RequireApproved(ctx, 404); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown patient, got %v", err)
	}
}

func TestDeletePatient_Invalidates(t *testing.T) {
	svc, _, n := newTestService()
	ctx := context.Background()
	p, _ := svc.CreatePatient(ctx, &Request{FirstName: "A", LastName: "B"})
	n.topics = nil
	if err := svc.DeletePatient(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"patients": true, "treatments": true, "commission-reports": true, "referrals": true}
	for _, topic := range n.topics {
		delete(want, topic)
	}
	if len(want) != 0 {
		t.Errorf("missing invalidations %v", want)
	}
}

func TestListPatients_BadStatus(t *testing.T) {
	svc, _, _ := newTestService()
	if _, _, err := svc.ListPatients(context.Background(), Filter{IVRStatus: "x"}, 10, 0); err == nil {
		t.Fatal("expected error")
	}
}
