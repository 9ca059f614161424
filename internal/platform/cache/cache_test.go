package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/websocket"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(v, dest)
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefixes ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range prefixes {
		m.deleted = append(m.deleted, p)
		for k := range m.data {
			if strings.HasPrefix(k, p) {
				delete(m.data, k)
			}
		}
	}
	return nil
}

type recordingPublisher struct {
	events []websocket.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestKey(t *testing.T) {
	if got := Key("northside", TopicTreatments); got != "clinic:northside:treatments" {
		t.Errorf("unexpected key %q", got)
	}
	if got := Key("northside", TopicCommissionReports, "periods", "2024-06"); got != "clinic:northside:commission-reports:periods:2024-06" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestRemember_LoadsOnceThenServesCache(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]int, error) {
		calls++
		return []int{1, 2, 3}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Remember(ctx, store, "k", time.Minute, load)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("unexpected value %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected one load, got %d", calls)
	}
}

func TestRemember_ErrorNotCached(t *testing.T) {
	store := newMemStore()
	boom := errors.New("boom")
	_, err := Remember(context.Background(), store, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.data) != 0 {
		t.Error("failed loads must not be cached")
	}
}

func TestRemember_NilAndNopStore(t *testing.T) {
	for _, store := range []Store{nil, NopStore{}} {
		calls := 0
		for i := 0; i < 2; i++ {
			_, _ = Remember(context.Background(), store, "k", time.Minute, func(context.Context) (string, error) {
				calls++
				return "v", nil
			})
		}
		if calls != 2 {
			t.Errorf("expected every read to load, got %d", calls)
		}
	}
}

func TestInvalidator_DropsClinicKeysAndBroadcasts(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	ctx := db.WithClinic(context.Background(), "northside")

	_ = store.Set(ctx, Key("northside", TopicCommissionReports, "2024-06"), 1, 0)
	_ = store.Set(ctx, Key("eastside", TopicCommissionReports, "2024-06"), 1, 0)
	_ = store.Set(ctx, Key("northside", TopicInvoices), 1, 0)

	inv := NewInvalidator(store, pub, zerolog.Nop())
	inv.Invalidate(ctx, TopicTreatments, TopicCommissionReports)

	if _, ok := store.data[Key("northside", TopicCommissionReports, "2024-06")]; ok {
		t.Error("expected northside report cache dropped")
	}
	if _, ok := store.data[Key("eastside", TopicCommissionReports, "2024-06")]; !ok {
		t.Error("other clinics must keep their cache")
	}
	if _, ok := store.data[Key("northside", TopicInvoices)]; !ok {
		t.Error("untouched topics must keep their cache")
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	for i, topic := range []string{TopicTreatments, TopicCommissionReports} {
		ev := pub.events[i]
		if ev.Type != websocket.EventInvalidate || ev.Topic != topic || ev.Clinic != "northside" {
			t.Errorf("event %d: unexpected %+v", i, ev)
		}
	}
}

func TestInvalidator_NoClinicIsNoop(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	NewInvalidator(store, pub, zerolog.Nop()).Invalidate(context.Background(), TopicTreatments)

	if len(store.deleted) != 0 || len(pub.events) != 0 {
		t.Error("expected nothing to happen without a clinic")
	}
}

func TestInvalidator_NilPublisherAndStore(t *testing.T) {
	ctx := db.WithClinic(context.Background(), "northside")
	NewInvalidator(nil, nil, zerolog.Nop()).Invalidate(ctx, TopicPatients)
}

func TestInvalidator_WithHub(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	client := websocket.NewClient("northside", TopicPatients)
	hub.Register(client)

	ctx := db.WithClinic(context.Background(), "northside")
	NewInvalidator(NopStore{}, hub, zerolog.Nop()).Invalidate(ctx, TopicPatients)

	select {
	case data := <-client.Send:
		var ev websocket.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != "invalidate" || ev.Topic != TopicPatients {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected invalidate event")
	}
}
