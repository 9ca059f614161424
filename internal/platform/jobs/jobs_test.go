package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/websocket"
)

type fakeClinics struct {
	ids []string
	err error
}

func (f fakeClinics) List(context.Context) ([]string, error) { return f.ids, f.err }

func (f fakeClinics) Within(ctx context.Context, clinic string, fn func(context.Context) error) error {
	return fn(db.WithClinic(ctx, clinic))
}

type fakeSource struct {
	byClinic map[string]int
	failFor  string
	seenDay  civil.Date
}

func (f *fakeSource) Overdue(ctx context.Context, today civil.Date) (int, decimal.Decimal, error) {
	f.seenDay = today
	clinic := db.ClinicFromContext(ctx)
	if clinic == f.failFor {
		return 0, decimal.Zero, errors.New("query failed")
	}
	n := f.byClinic[clinic]
	return n, decimal.NewFromInt(int64(n) * 100), nil
}

type recordingNotifier struct {
	calls map[string][]string
}

func (r *recordingNotifier) Invalidate(ctx context.Context, topics ...string) {
	if r.calls == nil {
		r.calls = make(map[string][]string)
	}
	clinic := db.ClinicFromContext(ctx)
	r.calls[clinic] = append(r.calls[clinic], topics...)
}

type recordingPublisher struct {
	events []websocket.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type fakeLocker struct {
	held     bool
	released bool
}

func (l *fakeLocker) Obtain(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if l.held {
		return nil, ErrLocked
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, nil
}

func newSweep(clinics Clinics, src OverdueSource, n cache.Notifier, p websocket.Publisher, l Locker) *OverdueSweep {
	s := NewOverdueSweep(clinics, src, n, p, l, time.UTC, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestOverdueSweep_RunsEveryClinic(t *testing.T) {
	src := &fakeSource{byClinic: map[string]int{"northside": 2, "eastside": 0}}
	notifier := &recordingNotifier{}
	pub := &recordingPublisher{}
	lock := &fakeLocker{}

	results, err := newSweep(fakeClinics{ids: []string{"northside", "eastside"}}, src, notifier, pub, lock).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(results))
	}
	if results[0].Clinic != "northside" || results[0].Count != 2 || !results[0].Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("unexpected summary %+v", results[0])
	}
	if want := (civil.Date{Year: 2024, Month: 6, Day: 20}); src.seenDay != want {
		t.Errorf("expected today %v, got %v", want, src.seenDay)
	}
	if got := notifier.calls["northside"]; len(got) != 1 || got[0] != "treatments" {
		t.Errorf("expected treatments invalidated, got %v", got)
	}
	if len(pub.events) != 2 || pub.events[0].Type != websocket.EventOverdue {
		t.Fatalf("expected overdue events, got %+v", pub.events)
	}
	var data OverdueSummary
	if err := json.Unmarshal(pub.events[0].Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Count != 2 || data.Date.String() != "2024-06-20" {
		t.Errorf("unexpected event data %+v", data)
	}
	if !lock.released {
		t.Error("expected lock released")
	}
}

func TestOverdueSweep_SkipsWhenLocked(t *testing.T) {
	src := &fakeSource{}
	results, err := newSweep(fakeClinics{ids: []string{"northside"}}, src, &recordingNotifier{}, &recordingPublisher{}, &fakeLocker{held: true}).Run(context.Background())
	if err != nil || results != nil {
		t.Fatalf("expected silent skip, got %v %v", results, err)
	}
	if src.seenDay != (civil.Date{}) {
		t.Error("source must not be queried when the lock is held")
	}
}

func TestOverdueSweep_ContinuesPastFailingClinic(t *testing.T) {
	src := &fakeSource{byClinic: map[string]int{"eastside": 1}, failFor: "northside"}
	results, err := newSweep(fakeClinics{ids: []string{"northside", "eastside"}}, src, &recordingNotifier{}, nil, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(results) != 1 || results[0].Clinic != "eastside" {
		t.Errorf("expected eastside to still run, got %+v", results)
	}
}

func TestOverdueSweep_ListError(t *testing.T) {
	boom := errors.New("boom")
	_, err := newSweep(fakeClinics{err: boom}, &fakeSource{}, nil, nil, nil).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.Nop())
	if err := s.Add("overdue-sweep", "0 6 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 job, got %d", s.Len())
	}
	if err := s.Add("broken", "not a cron", func(context.Context) error { return nil }); err == nil {
		t.Error("expected invalid cron expression to fail")
	}
}
