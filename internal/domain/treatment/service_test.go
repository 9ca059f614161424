package treatment

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/internal/domain/patient"
	"github.com/woundcare/clinic/internal/domain/salesrep"
	"github.com/woundcare/clinic/internal/platform/httperr"
)

type mockRepo struct {
	treatments  map[int64]*Treatment
	nextID      int64
	failStatus  error
	failReplace error
}

func newMockRepo() *mockRepo {
	return &mockRepo{treatments: make(map[int64]*Treatment)}
}

func clone(t *Treatment) *Treatment {
	cp := *t
	cp.Commissions = append([]Assignment{}, t.Commissions...)
	return &cp
}

func (m *mockRepo) Create(_ context.Context, t *Treatment) error {
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	m.treatments[t.ID] = clone(t)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Treatment, error) {
	t, ok := m.treatments[id]
	if !ok {
		return nil, httperr.NotFound("treatment", id)
	}
	return clone(t), nil
}

func (m *mockRepo) Update(_ context.Context, t *Treatment) error {
	if _, ok := m.treatments[t.ID]; !ok {
		return httperr.NotFound("treatment", t.ID)
	}
	m.treatments[t.ID] = clone(t)
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, t *Treatment) error {
	if m.failStatus != nil {
		return m.failStatus
	}
	cur, ok := m.treatments[t.ID]
	if !ok {
		return httperr.NotFound("treatment", t.ID)
	}
	cur.InvoiceStatus = t.InvoiceStatus
	cur.PaymentDate = t.PaymentDate
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.treatments[id]; !ok {
		return httperr.NotFound("treatment", id)
	}
	delete(m.treatments, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Treatment, int, error) {
	var out []*Treatment
	for _, t := range m.treatments {
		if f.Status != "" && t.InvoiceStatus != f.Status {
			continue
		}
		if f.PatientID != nil && t.PatientID != *f.PatientID {
			continue
		}
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if limit > 0 {
		if offset > len(out) {
			offset = len(out)
		}
		out = out[offset:]
		if limit < len(out) {
			out = out[:limit]
		}
	}
	return out, total, nil
}

func (m *mockRepo) ReplaceCommissions(_ context.Context, id int64, as []Assignment) error {
	if m.failReplace != nil {
		return m.failReplace
	}
	m.treatments[id].Commissions = append([]Assignment{}, as...)
	return nil
}

func (m *mockRepo) NextNumber(_ context.Context, patientID int64) (int, error) {
	n := 0
	for _, t := range m.treatments {
		if t.PatientID == patientID && t.TreatmentNumber > n {
			n = t.TreatmentNumber
		}
	}
	return n + 1, nil
}

func (m *mockRepo) Overdue(_ context.Context, today civil.Date) (int, decimal.Decimal, error) {
	n, sum := 0, decimal.Zero
	for _, t := range m.treatments {
		if IsOverdue(t, today) {
			n++
			sum = sum.Add(t.InvoiceTotal)
		}
	}
	return n, sum, nil
}

// tx drops rows created inside a failed unit of work.
func (m *mockRepo) tx(ctx context.Context, fn func(context.Context) error) error {
	snap := make(map[int64]*Treatment, len(m.treatments))
	for id, t := range m.treatments {
		snap[id] = clone(t)
	}
	if err := fn(ctx); err != nil {
		m.treatments = snap
		return err
	}
	return nil
}

type fakePatients map[int64]string

func (f fakePatients) RequireApproved(_ context.Context, id int64) (*patient.Patient, error) {
	status, ok := f[id]
	if !ok {
		return nil, httperr.Invalid("patientId", "unknown patient")
	}
	if status != patient.IVRApproved {
		return nil, httperr.Invalid("patientId", "patient IVR is not approved")
	}
	return &patient.Patient{ID: id, IVRStatus: status}, nil
}

type fakeReps map[int64]*salesrep.SalesRep

func (f fakeReps) GetByID(_ context.Context, id int64) (*salesrep.SalesRep, error) {
	r, ok := f[id]
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

var serviceToday = civil.Date{Year: 2024, Month: 6, Day: 20}

func newTestService() (*Service, *mockRepo, *recordingNotifier) {
	repo := newMockRepo()
	n := &recordingNotifier{}
	pats := fakePatients{1: patient.IVRApproved, 2: patient.IVRPending, 3: patient.IVRApproved}
	reps := fakeReps{
		10: {ID: 10, Name: "Dana Cole", DefaultCommissionRate: dec("10")},
		11: {ID: 11, Name: "Eli Brooks", DefaultCommissionRate: dec("5")},
	}
	svc := NewService(repo, pats, reps, repo.tx, n, nil, Config{})
	svc.today = func() civil.Date { return serviceToday }
	return svc, repo, n
}

func baseRequest() *Request {
	return &Request{PatientID: 1, GraftType: "Amniotic membrane", QCode: "q4151", WoundSizeSqCm: dec("10"), PricePerSqCm: dec("100")}
}

func TestCreateTreatment_Derivations(t *testing.T) {
	svc, _, n := newTestService()
	tr, err := svc.CreateTreatment(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.TotalRevenue.Equal(dec("1000.00")) || !tr.InvoiceTotal.Equal(dec("600.00")) || !tr.TotalCommissionPool.Equal(dec("180.00")) {
		t.Errorf("unexpected derivations %s / %s / %s", tr.TotalRevenue, tr.InvoiceTotal, tr.TotalCommissionPool)
	}
	if tr.InvoiceStatus != StatusOpen || tr.TreatmentNumber != 1 || tr.QCode != "Q4151" {
		t.Errorf("unexpected treatment %+v", tr)
	}
	if len(n.topics) != 3 {
		t.Errorf("expected treatments, patients and commission-reports invalidated, got %v", n.topics)
	}
}

func TestCreateTreatment_RequiresApprovedPatient(t *testing.T) {
	svc, repo, _ := newTestService()
	req := baseRequest()
	req.PatientID = 2
	_, err := svc.CreateTreatment(context.Background(), req)
	var ve *httperr.ValidationError
	if !errors.As(err, &ve) || ve.Fields["patientId"] == "" {
		t.Fatalf("expected patientId error, got %v", err)
	}
	if len(repo.treatments) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestCreateTreatment_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	req := baseRequest()
	req.WoundSizeSqCm = dec("0")
	req.PricePerSqCm = dec("-1")
	req.Commissions = []AssignmentRequest{{SalesRepID: 10}, {SalesRepID: 10}}
	_, err := svc.CreateTreatment(context.Background(), req)
	var ve *httperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"woundSizeSqCm", "pricePerSqCm", "commissions[1].salesRepId"} {
		if ve.Fields[f] == "" {
			t.Errorf("expected %s error, got %v", f, ve.Fields)
		}
	}
}

func TestCreateTreatment_RejectsSubCentPrecision(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(r *Request)
		field string
	}{
		{"wound size", func(r *Request) { r.WoundSizeSqCm = dec("1.234") }, "woundSizeSqCm"},
		{"price", func(r *Request) { r.PricePerSqCm = dec("100.005") }, "pricePerSqCm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			req := baseRequest()
			tt.edit(req)
			_, err := svc.CreateTreatment(context.Background(), req)
			var ve *httperr.ValidationError
			if !errors.As(err, &ve) || ve.Fields[tt.field] == "" {
				t.Fatalf("expected %s error, got %v", tt.field, err)
			}
			if len(repo.treatments) != 0 {
				t.Error("nothing should be stored")
			}
		})
	}
}

func TestCreateTreatment_MultiRep(t *testing.T) {
	svc, repo, _ := newTestService()
	req := baseRequest()
	rate := dec("7.5")
	req.Commissions = []AssignmentRequest{{SalesRepID: 10}, {SalesRepID: 11, CommissionRate: &rate}}
	tr, err := svc.CreateTreatment(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Commissions) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(tr.Commissions))
	}
	if a := tr.Commissions[0]; a.SalesRepName != "Dana Cole" || !a.CommissionRate.Equal(dec("10")) || !a.CommissionAmount.Equal(dec("60")) {
		t.Errorf("unexpected default-rate assignment %+v", a)
	}
	if a := tr.Commissions[1]; !a.CommissionAmount.Equal(dec("45")) {
		t.Errorf("unexpected override assignment %+v", a)
	}
	if !tr.ClinicCommission.Equal(dec("75")) {
		t.Errorf("clinic commission = %s", tr.ClinicCommission)
	}
	if len(repo.treatments[tr.ID].Commissions) != 2 {
		t.Error("assignments not stored")
	}
}

func TestCreateTreatment_LegacySingleRep(t *testing.T) {
	svc, _, _ := newTestService()
	req := baseRequest()
	rep := int64(11)
	req.SalesRepID = &rep
	tr, err := svc.CreateTreatment(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Commissions) != 1 || !tr.Commissions[0].CommissionAmount.Equal(dec("30")) {
		t.Fatalf("unexpected assignments %+v", tr.Commissions)
	}
	if tr.SalesRepCommissionRate == nil || !tr.SalesRepCommissionRate.Equal(dec("5")) {
		t.Errorf("expected resolved legacy rate 5, got %v", tr.SalesRepCommissionRate)
	}
}

func TestCreateTreatment_UnknownRep(t *testing.T) {
	svc, _, _ := newTestService()
	req := baseRequest()
	req.Commissions = []AssignmentRequest{{SalesRepID: 99}}
	_, err := svc.CreateTreatment(context.Background(), req)
	var ve *httperr.ValidationError
	if !errors.As(err, &ve) || ve.Fields["commissions[0].salesRepId"] == "" {
		t.Fatalf("expected unknown rep error, got %v", err)
	}
}

func TestCreateTreatment_PayableDefault(t *testing.T) {
	svc, _, _ := newTestService()
	req := baseRequest()
	req.InvoiceDate = day(2024, 3, 1)
	tr, err := svc.CreateTreatment(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if tr.PayableDate == nil || *tr.PayableDate != *day(2024, 3, 31) {
		t.Errorf("payable = %v, want 2024-03-31", tr.PayableDate)
	}

	req.PayableDate = day(2024, 4, 15)
	tr, _ = svc.CreateTreatment(context.Background(), req)
	if *tr.PayableDate != *day(2024, 4, 15) {
		t.Errorf("explicit payable date overridden: %v", tr.PayableDate)
	}
}

func TestUpdateTreatment_PayableFollowsInvoiceDate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	req := baseRequest()
	req.InvoiceDate = day(2024, 3, 1)
	tr, _ := svc.CreateTreatment(ctx, req)

	upd := baseRequest()
	upd.InvoiceDate = day(2024, 3, 10)
	upd.PayableDate = tr.PayableDate
	got, err := svc.UpdateTreatment(ctx, tr.ID, upd)
	if err != nil {
		t.Fatal(err)
	}
	if *got.PayableDate != *day(2024, 4, 9) {
		t.Errorf("payable = %v, want recomputed 2024-04-09", got.PayableDate)
	}

	upd.InvoiceDate = day(2024, 3, 20)
	upd.PayableDate = day(2024, 5, 1)
	got, _ = svc.UpdateTreatment(ctx, tr.ID, upd)
	if *got.PayableDate != *day(2024, 5, 1) {
		t.Errorf("client payable date lost: %v", got.PayableDate)
	}

	upd.InvoiceDate = day(2024, 3, 20)
	upd.PayableDate = nil
	got, _ = svc.UpdateTreatment(ctx, tr.ID, upd)
	if *got.PayableDate != *day(2024, 5, 1) {
		t.Errorf("unchanged invoice date must keep payable, got %v", got.PayableDate)
	}
	if got.TreatmentNumber != tr.TreatmentNumber {
		t.Errorf("treatment number changed to %d", got.TreatmentNumber)
	}
}

func TestUpdateTreatment_RecomputesCommissions(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	req := baseRequest()
	req.Commissions = []AssignmentRequest{{SalesRepID: 10}}
	tr, _ := svc.CreateTreatment(ctx, req)

	req.WoundSizeSqCm = dec("20")
	got, err := svc.UpdateTreatment(ctx, tr.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if !got.InvoiceTotal.Equal(dec("1200")) || !got.Commissions[0].CommissionAmount.Equal(dec("120")) {
		t.Errorf("unexpected recompute %s / %s", got.InvoiceTotal, got.Commissions[0].CommissionAmount)
	}
	if !repo.treatments[tr.ID].Commissions[0].CommissionAmount.Equal(dec("120")) {
		t.Error("stored assignment not recomputed")
	}
}

func TestUpdateTreatment_RollsBackOnAssignmentFailure(t *testing.T) {
	svc, repo, n := newTestService()
	ctx := context.Background()
	tr, _ := svc.CreateTreatment(ctx, baseRequest())
	n.topics = nil

	repo.failReplace = errors.New("connection reset")
	req := baseRequest()
	req.WoundSizeSqCm = dec("20")
	if _, err := svc.UpdateTreatment(ctx, tr.ID, req); err == nil {
		t.Fatal("expected error")
	}
	if !repo.treatments[tr.ID].WoundSizeSqCm.Equal(dec("10")) {
		t.Error("treatment row must be rolled back")
	}
	if len(n.topics) != 0 {
		t.Errorf("failed update must not invalidate, got %v", n.topics)
	}
}

func TestUpdateInvoiceStatus(t *testing.T) {
	svc, repo, n := newTestService()
	ctx := context.Background()
	tr, _ := svc.CreateTreatment(ctx, baseRequest())
	n.topics = nil

	if _, err := svc.UpdateInvoiceStatus(ctx, tr.ID, &StatusRequest{InvoiceStatus: StatusPayable}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.UpdateInvoiceStatus(ctx, tr.ID, &StatusRequest{InvoiceStatus: StatusClosed})
	if !errors.Is(err, ErrPaymentDateRequired) {
		t.Fatalf("expected payment date required, got %v", err)
	}
	if repo.treatments[tr.ID].InvoiceStatus != StatusPayable {
		t.Error("rejected close must leave the record unchanged")
	}

	got, err := svc.UpdateInvoiceStatus(ctx, tr.ID, &StatusRequest{InvoiceStatus: StatusClosed, PaymentDate: day(2024, 6, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if got.InvoiceStatus != StatusClosed || got.PaymentDate.String() != "2024-06-01" {
		t.Errorf("unexpected treatment %+v", got)
	}
	stored := repo.treatments[tr.ID]
	if stored.InvoiceStatus != StatusClosed || *stored.PaymentDate != *day(2024, 6, 1) {
		t.Errorf("unexpected stored treatment %+v", stored)
	}

	got, _ = svc.UpdateInvoiceStatus(ctx, tr.ID, &StatusRequest{InvoiceStatus: StatusOpen})
	if got.PaymentDate != nil || repo.treatments[tr.ID].PaymentDate != nil {
		t.Error("re-opening must clear the payment date")
	}
	if len(n.topics) != 9 {
		t.Errorf("expected three invalidations per transition, got %v", n.topics)
	}
}

func TestUpdateInvoiceStatus_Errors(t *testing.T) {
	svc, repo, n := newTestService()
	ctx := context.Background()
	tr, _ := svc.CreateTreatment(ctx, baseRequest())
	n.topics = nil

	if _, err := svc.UpdateInvoiceStatus(ctx, tr.ID, &StatusRequest{InvoiceStatus: "void"}); httperr.ToHTTP(err).Code != 400 {
		t.Errorf("expected 400 for unknown status, got %v", err)
	}
	if _, err := svc.UpdateInvoiceStatus(ctx, 404, &StatusRequest{InvoiceStatus: StatusPayable}); !errors.Is(err, httperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	repo.failStatus = errors.New("connection reset")
	if _, err := svc.UpdateInvoiceStatus(ctx, tr.ID, &StatusRequest{InvoiceStatus: StatusPayable}); err == nil {
		t.Error("expected store failure")
	}
	if repo.treatments[tr.ID].InvoiceStatus != StatusOpen {
		t.Error("store failure must leave the record unchanged")
	}
	if len(n.topics) != 0 {
		t.Errorf("failures must not invalidate, got %v", n.topics)
	}
}

func TestCreateTreatment_ClosedNeedsPaymentDate(t *testing.T) {
	svc, _, _ := newTestService()
	req := baseRequest()
	req.InvoiceStatus = StatusClosed
	if _, err := svc.CreateTreatment(context.Background(), req); !errors.Is(err, ErrPaymentDateRequired) {
		t.Fatalf("expected payment date required, got %v", err)
	}
	req.PaymentDate = day(2024, 6, 1)
	tr, err := svc.CreateTreatment(context.Background(), req)
	if err != nil || tr.PaymentDate == nil {
		t.Fatalf("unexpected %v %v", tr, err)
	}
}

func TestAllTreatments_OverdueFlag(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	req := baseRequest()
	req.InvoiceDate = day(2024, 5, 1)
	req.PayableDate = day(2024, 6, 19)
	open, _ := svc.CreateTreatment(ctx, req)

	req.InvoiceStatus = StatusClosed
	req.PaymentDate = day(2024, 6, 19)
	closed, _ := svc.CreateTreatment(ctx, req)

	ts, err := svc.AllTreatments(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	flags := map[int64]bool{}
	for _, tr := range ts {
		flags[tr.ID] = tr.IsOverdue
	}
	if !flags[open.ID] || flags[closed.ID] {
		t.Errorf("unexpected overdue flags %v", flags)
	}

	n, sum, err := svc.Overdue(ctx, serviceToday)
	if err != nil || n != 1 || !sum.Equal(dec("600")) {
		t.Errorf("overdue = %d %s %v", n, sum, err)
	}
}

func TestMetrics(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	req := baseRequest()
	req.InvoiceDate = day(2024, 6, 2)
	svc.CreateTreatment(ctx, req)

	m, err := svc.Metrics(ctx, civil.Date{}, civil.Date{})
	if err != nil {
		t.Fatal(err)
	}
	if !m.OutstandingTotal.Equal(dec("600")) || m.Today != serviceToday {
		t.Errorf("unexpected metrics %+v", m)
	}
	if _, err := svc.Metrics(ctx, *day(2024, 6, 2), *day(2024, 6, 1)); err == nil {
		t.Error("expected inverted range to fail")
	}
}

func TestDeleteTreatment(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	tr, _ := svc.CreateTreatment(ctx, baseRequest())
	if err := svc.DeleteTreatment(ctx, tr.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetTreatment(ctx, tr.ID); !errors.Is(err, httperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
