package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/alerting"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store := storage.NewSQLiteStorage(":memory:")
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func newSinkServer(t *testing.T, status int, got *[]Payload) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if got != nil {
			*got = append(*got, p)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func firingTransition(key string) models.AlertTransition {
	return models.AlertTransition{
		Key:      key,
		From:     models.AlertOK,
		To:       models.AlertFiring,
		Severity: models.SeverityMedium,
		Summary:  "4 webhook failures (0 repeated) in window",
	}
}

func firingResult(key string) alerting.Result {
	return alerting.Result{
		Key:      key,
		State:    models.AlertFiring,
		Severity: models.SeverityMedium,
		Summary:  "4 webhook failures (0 repeated) in window",
		Signals:  map[string]int{models.SignalWebhookFailures: 4},
	}
}

func testWindow(now time.Time) models.Window {
	return models.Window{Minutes: 15, From: now.Add(-15 * time.Minute), To: now}
}

func TestDispatcherDelivers(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var received []Payload
	server := newSinkServer(t, http.StatusOK, &received)
	sink, err := NewSink(SinkConfig{URL: server.URL, Secret: "shared", AckBaseURL: "https://ops.example.com"})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	key := "webhook_failures_spike"
	seedState(t, store, key, nil, "")

	d := NewDispatcher(sink, NewAckTokenService("ack-secret"), store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{firingTransition(key)},
		map[string]alerting.Result{key: firingResult(key)},
		map[string]models.AlertState{},
		testWindow(now),
		map[string]string{key: "event-1"},
		now,
	)

	if len(out) != 1 || !out[0].Attempted || out[0].Status != models.DeliveryDelivered {
		t.Fatalf("result = %+v, want attempted delivered", out)
	}
	if len(received) != 1 {
		t.Fatalf("sink received %d payloads, want 1", len(received))
	}
	if received[0].EventID != "event-1" || received[0].Key != key {
		t.Errorf("payload = %+v", received[0])
	}
	if received[0].AckURL == "" {
		t.Error("payload missing ack URL")
	}

	rows, err := store.Deliveries().ListByEvent(ctx, "event-1")
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != models.DeliveryDelivered {
		t.Fatalf("delivery rows = %+v, want one delivered", rows)
	}

	st, err := store.AlertStates().Get(ctx, key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.LastNotifiedAt == nil {
		t.Error("lastNotifiedAt not advanced after attempt")
	}
	if st.LastPayloadHash == "" {
		t.Error("lastPayloadHash not recorded")
	}
}

func TestDispatcherSinkFailureRecordsAttempt(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	server := newSinkServer(t, http.StatusBadGateway, nil)
	sink, err := NewSink(SinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	key := "portal_errors_spike"
	seedState(t, store, key, nil, "")

	d := NewDispatcher(sink, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{firingTransition(key)},
		map[string]alerting.Result{key: firingResult(key)},
		map[string]models.AlertState{},
		testWindow(now),
		map[string]string{key: "event-2"},
		now,
	)

	if len(out) != 1 || !out[0].Attempted || out[0].Status != models.DeliveryFailed {
		t.Fatalf("result = %+v, want attempted failed", out)
	}
	if out[0].Reason == "" {
		t.Error("failed delivery has no reason")
	}

	rows, _ := store.Deliveries().ListByEvent(ctx, "event-2")
	if len(rows) != 1 || rows[0].Status != models.DeliveryFailed {
		t.Fatalf("delivery rows = %+v, want one failed", rows)
	}

	// A failed attempt still advances the cooldown clock.
	st, _ := store.AlertStates().Get(ctx, key)
	if st.LastNotifiedAt == nil {
		t.Error("lastNotifiedAt not advanced after failed attempt")
	}
}

func TestDispatcherCooldownDedup(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var received []Payload
	server := newSinkServer(t, http.StatusOK, &received)
	sink, err := NewSink(SinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	key := "webhook_failures_spike"
	res := firingResult(key)
	hash := alerting.PayloadHash(res)
	notified := now.Add(-5 * time.Minute)
	seedState(t, store, key, &notified, hash)

	prev := map[string]models.AlertState{
		key: {Key: key, State: models.AlertFiring, LastNotifiedAt: &notified, LastPayloadHash: hash},
	}

	d := NewDispatcher(sink, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{firingTransition(key)},
		map[string]alerting.Result{key: res},
		prev,
		testWindow(now),
		map[string]string{key: "event-3"},
		now,
	)

	if len(out) != 1 || out[0].Attempted || out[0].Reason != ReasonCooldown {
		t.Fatalf("result = %+v, want cooldown skip", out)
	}
	if len(received) != 0 {
		t.Errorf("sink received %d payloads, want 0", len(received))
	}
	rows, _ := store.Deliveries().ListByEvent(ctx, "event-3")
	if len(rows) != 0 {
		t.Errorf("delivery rows = %d, want 0 for skipped send", len(rows))
	}
}

func TestDispatcherChangedPayloadBreaksCooldown(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var received []Payload
	server := newSinkServer(t, http.StatusOK, &received)
	sink, err := NewSink(SinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	key := "webhook_failures_spike"
	notified := now.Add(-5 * time.Minute)
	seedState(t, store, key, &notified, "stale-hash")

	prev := map[string]models.AlertState{
		key: {Key: key, State: models.AlertFiring, LastNotifiedAt: &notified, LastPayloadHash: "stale-hash"},
	}

	d := NewDispatcher(sink, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{firingTransition(key)},
		map[string]alerting.Result{key: firingResult(key)},
		prev,
		testWindow(now),
		map[string]string{key: "event-4"},
		now,
	)

	if len(out) != 1 || !out[0].Attempted {
		t.Fatalf("result = %+v, want attempted despite cooldown", out)
	}
	if len(received) != 1 {
		t.Errorf("sink received %d payloads, want 1", len(received))
	}
}

func TestDispatcherSnoozedSkips(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var received []Payload
	server := newSinkServer(t, http.StatusOK, &received)
	sink, err := NewSink(SinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	key := "rate_limit_pressure"
	until := now.Add(time.Hour)
	prev := map[string]models.AlertState{
		key: {Key: key, State: models.AlertOK, SnoozedUntil: &until},
	}

	d := NewDispatcher(sink, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{firingTransition(key)},
		map[string]alerting.Result{key: firingResult(key)},
		prev,
		testWindow(now),
		map[string]string{key: "event-5"},
		now,
	)

	if len(out) != 1 || out[0].Attempted || out[0].Reason != ReasonSnoozed {
		t.Fatalf("result = %+v, want snoozed skip", out)
	}
	if len(received) != 0 {
		t.Errorf("sink received %d payloads, want 0", len(received))
	}
}

func TestDispatcherMissingSink(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	key := "webhook_failures_spike"
	d := NewDispatcher(nil, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{firingTransition(key)},
		map[string]alerting.Result{key: firingResult(key)},
		map[string]models.AlertState{},
		testWindow(now),
		map[string]string{key: "event-6"},
		now,
	)

	if len(out) != 1 || out[0].Attempted || out[0].Reason != ReasonMissingWebhook {
		t.Fatalf("result = %+v, want missing_webhook skip", out)
	}

	// The skip still leaves an auditable failed row.
	rows, _ := store.Deliveries().ListByEvent(ctx, "event-6")
	if len(rows) != 1 || rows[0].Status != models.DeliveryFailed || rows[0].MaskedReason != ReasonMissingWebhook {
		t.Fatalf("delivery rows = %+v, want one failed missing_webhook", rows)
	}
}

func TestDispatcherResolutionSuppressed(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var received []Payload
	server := newSinkServer(t, http.StatusOK, &received)
	sink, err := NewSink(SinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	key := "webhook_failures_spike"
	resolution := models.AlertTransition{
		Key: key, From: models.AlertFiring, To: models.AlertOK,
		Severity: models.SeverityMedium, Summary: "recovered",
	}

	d := NewDispatcher(sink, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{})
	out := d.Notify(ctx,
		[]models.AlertTransition{resolution},
		map[string]alerting.Result{key: {Key: key, State: models.AlertOK}},
		map[string]models.AlertState{},
		testWindow(now),
		map[string]string{key: "event-7"},
		now,
	)

	if len(out) != 1 || out[0].Attempted || out[0].Reason != ReasonResolutionSuppressed {
		t.Fatalf("result = %+v, want resolution suppressed", out)
	}

	// With resolutions enabled the same transition delivers.
	d = NewDispatcher(sink, nil, store.AlertStates(), store.Deliveries(), store.Audit(), Options{IncludeResolutions: true})
	out = d.Notify(ctx,
		[]models.AlertTransition{resolution},
		map[string]alerting.Result{key: {Key: key, State: models.AlertOK}},
		map[string]models.AlertState{},
		testWindow(now),
		map[string]string{key: "event-8"},
		now,
	)
	if len(out) != 1 || !out[0].Attempted {
		t.Fatalf("result = %+v, want attempted resolution", out)
	}
	if len(received) != 1 {
		t.Errorf("sink received %d payloads, want 1", len(received))
	}
}

func seedState(t *testing.T, store *storage.SQLiteStorage, key string, notified *time.Time, hash string) {
	t.Helper()
	err := store.AlertStates().Upsert(context.Background(), &models.AlertState{
		Key:             key,
		State:           models.AlertFiring,
		LastSeenAt:      time.Now().UTC(),
		LastNotifiedAt:  notified,
		LastPayloadHash: hash,
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
}
