package engine

import (
	"context"
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/cases"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/notifier"
	"github.com/good-yellow-bee/opswatch/internal/signal"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryEventStorage, *storage.SQLiteStorage) {
	t.Helper()
	events := storage.NewMemoryEventStorage()
	store := storage.NewSQLiteStorage(":memory:")
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	counts := signal.NewCountsProvider(events, nil)
	dispatcher := notifier.NewDispatcher(nil, nil, store.AlertStates(), store.Deliveries(), store.Audit(), notifier.Options{})
	caseService := cases.NewService(store.Cases(), store.Audit())
	eng := New(counts, StaticThresholds(signal.DefaultThresholds()), store.AlertStates(), store.AlertEvents(), dispatcher, caseService, 15)
	return eng, events, store
}

func seedWebhookFailures(t *testing.T, events *storage.MemoryEventStorage, now time.Time, n int) {
	t.Helper()
	var seed []*models.ActivityEvent
	for i := 0; i < n; i++ {
		seed = append(seed, &models.ActivityEvent{
			Type:       models.EventTypeWebhookFailure,
			OccurredAt: now.Add(-time.Duration(i+1) * time.Minute),
			RequestID:  "req-" + string(rune('a'+i)),
		})
	}
	if err := events.Insert(context.Background(), seed); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestTickFiresAndOpensCase(t *testing.T) {
	eng, events, store := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seedWebhookFailures(t, events, now, 6)

	result, err := eng.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	if result.Rag.Overall != models.BandRed {
		t.Errorf("overall = %s, want red", result.Rag.Overall)
	}

	// rag_red and webhook_failures_spike both cross ok->firing.
	firing := map[string]bool{}
	for _, tr := range result.Transitions {
		if tr.To == models.AlertFiring {
			firing[tr.Key] = true
		}
	}
	if !firing["rag_red"] || !firing["webhook_failures_spike"] {
		t.Errorf("firing transitions = %v", firing)
	}

	// States persisted with an episode start.
	st, err := store.AlertStates().Get(ctx, "rag_red")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.State != models.AlertFiring || st.StartedAt == nil {
		t.Errorf("state = %+v, want firing with startedAt", st)
	}

	// One event row per transition.
	recent, err := store.AlertEvents().ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(recent) != len(result.Transitions) {
		t.Errorf("event rows = %d, want %d", len(recent), len(result.Transitions))
	}

	// A case auto-opened per firing rule.
	c, err := store.Cases().Get(ctx, "alert-rag_red")
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c == nil || c.Status != models.CaseOpen {
		t.Errorf("auto-opened case = %+v", c)
	}

	// No webhook configured: every firing delivery is a recorded skip.
	for _, d := range result.Deliveries {
		if d.Attempted {
			t.Errorf("delivery attempted without sink: %+v", d)
		}
	}
}

func TestTickSteadyStateProducesNoTransitions(t *testing.T) {
	eng, events, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seedWebhookFailures(t, events, now, 6)

	if _, err := eng.Tick(ctx, now); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	second, err := eng.Tick(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(second.Transitions) != 0 {
		t.Errorf("transitions = %+v, want none while still firing", second.Transitions)
	}
}

func TestTickRecovery(t *testing.T) {
	eng, events, store := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seedWebhookFailures(t, events, now, 6)
	if _, err := eng.Tick(ctx, now); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// The failures age out of the window and everything recovers.
	later := now.Add(30 * time.Minute)
	result, err := eng.Tick(ctx, later)
	if err != nil {
		t.Fatalf("recovery tick: %v", err)
	}

	recovered := 0
	for _, tr := range result.Transitions {
		if tr.Resolution() {
			recovered++
		}
	}
	if recovered != 2 {
		t.Errorf("resolutions = %d, want 2", recovered)
	}

	st, _ := store.AlertStates().Get(ctx, "rag_red")
	if st.State != models.AlertOK || st.StartedAt != nil {
		t.Errorf("state after recovery = %+v", st)
	}
}

func TestTickAllQuiet(t *testing.T) {
	eng, _, store := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	result, err := eng.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Rag.Overall != models.BandGreen {
		t.Errorf("overall = %s, want green", result.Rag.Overall)
	}
	if len(result.Transitions) != 0 {
		t.Errorf("transitions = %+v, want none", result.Transitions)
	}

	// Every catalog rule still gets a persisted state row.
	states, err := store.AlertStates().List(ctx)
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	if len(states) != 4 {
		t.Errorf("state rows = %d, want 4", len(states))
	}
}
