package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

type fakeProvider struct {
	snap *ProviderSnapshot
	err  error
}

func (f *fakeProvider) Snapshot(ctx context.Context, requestID string) (*ProviderSnapshot, error) {
	return f.snap, f.err
}

func snapshotStore(t *testing.T) (*storage.MemoryEventStorage, *storage.SQLiteStorage) {
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
	return events, store
}

func TestSnapshotAssemblesTimeline(t *testing.T) {
	events, store := snapshotStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	err := events.Insert(ctx, []*models.ActivityEvent{
		{Type: models.EventTypeCheckoutSuccess, OccurredAt: base, RequestID: "req-1"},
		{Type: models.EventTypeWebhookReceived, OccurredAt: base.Add(time.Minute), RequestID: "req-1"},
		{Type: models.EventTypeCheckoutSuccess, OccurredAt: base, RequestID: "req-other"},
	})
	if err != nil {
		t.Fatalf("insert events: %v", err)
	}
	err = store.Ledger().Insert(ctx, "req-1", &models.LedgerEntry{
		Delta: 100, Reason: "purchase", CreatedAt: base.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("insert ledger: %v", err)
	}

	svc := NewStatusService(events, store.Ledger(), nil)
	status, err := svc.Snapshot(ctx, "req-1", base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if len(status.Timeline) != 3 {
		t.Fatalf("timeline entries = %d, want 3 (other request excluded)", len(status.Timeline))
	}
	if status.Correlation.State != models.DelayNone {
		t.Errorf("state = %s, want none after applied credit", status.Correlation.State)
	}
	if status.CreditsAvailable == nil || *status.CreditsAvailable != 100 {
		t.Errorf("credits = %v, want 100", status.CreditsAvailable)
	}
	if status.ErrorCode != "" {
		t.Errorf("error code = %q, want empty", status.ErrorCode)
	}
}

func TestSnapshotProviderFailureIsPartial(t *testing.T) {
	events, store := snapshotStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	err := events.Insert(ctx, []*models.ActivityEvent{
		{Type: models.EventTypeCheckoutSuccess, OccurredAt: base, RequestID: "req-2"},
	})
	if err != nil {
		t.Fatalf("insert events: %v", err)
	}

	svc := NewStatusService(events, store.Ledger(), &fakeProvider{err: errors.New("provider unavailable")})
	status, err := svc.Snapshot(ctx, "req-2", base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("snapshot should not fail on provider error: %v", err)
	}

	if status.ErrorCode != ErrCodeProviderSnapshot {
		t.Errorf("error code = %q, want %q", status.ErrorCode, ErrCodeProviderSnapshot)
	}
	if status.Provider != nil {
		t.Error("provider snapshot should be absent on failure")
	}
	// Local correlation still runs.
	if status.Correlation.State != models.DelayWaitingWebhook {
		t.Errorf("state = %s, want waiting_webhook", status.Correlation.State)
	}
}

func TestSnapshotIncludesProviderView(t *testing.T) {
	events, store := snapshotStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	provider := &fakeProvider{snap: &ProviderSnapshot{PaymentStatus: "paid", PendingWebhook: true}}
	svc := NewStatusService(events, store.Ledger(), provider)

	status, err := svc.Snapshot(ctx, "req-3", now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if status.Provider == nil || status.Provider.PaymentStatus != "paid" {
		t.Errorf("provider = %+v, want paid", status.Provider)
	}
}
