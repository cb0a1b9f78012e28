package cases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.SQLiteStorage) {
	t.Helper()
	store := storage.NewSQLiteStorage(":memory:")
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(store.Cases(), store.Audit()), store
}

var (
	opsUser   = models.Actor{UserID: "alice", IsOps: true}
	opsUser2  = models.Actor{UserID: "bob", IsOps: true}
	adminUser = models.Actor{UserID: "root", IsOps: true, IsAdmin: true}
	plainUser = models.Actor{UserID: "carol"}
)

func TestTouchCreatesCase(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := svc.Touch(ctx, "req-1", now)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if c.Status != models.CaseOpen {
		t.Errorf("status = %s, want open", c.Status)
	}
	if c.AssignedToUserID != "" {
		t.Errorf("assignee = %q, want empty", c.AssignedToUserID)
	}

	// Second touch refreshes, never duplicates.
	later := now.Add(time.Minute)
	c2, err := svc.Touch(ctx, "req-1", later)
	if err != nil {
		t.Fatalf("second touch: %v", err)
	}
	if !c2.LastTouchedAt.After(c.LastTouchedAt) {
		t.Errorf("lastTouchedAt not refreshed: %v vs %v", c2.LastTouchedAt, c.LastTouchedAt)
	}
}

func TestClaimRequiresOps(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	if _, err := svc.Claim(ctx, "req-1", plainUser, now); !errors.Is(err, ErrForbidden) {
		t.Errorf("claim without ops role: err = %v, want ErrForbidden", err)
	}
}

func TestClaimConflictSurfacesWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	if _, err := svc.Claim(ctx, "req-1", opsUser, now); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := svc.Claim(ctx, "req-1", opsUser2, now)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second claim err = %v, want *ConflictError", err)
	}
	if conflict.CurrentOwner != "alice" {
		t.Errorf("current owner = %q, want alice", conflict.CurrentOwner)
	}
}

func TestClaimIsIdempotentForOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	if _, err := svc.Claim(ctx, "req-1", opsUser, now); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	c, err := svc.Claim(ctx, "req-1", opsUser, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}
	if c.AssignedToUserID != "alice" {
		t.Errorf("assignee = %q, want alice", c.AssignedToUserID)
	}
}

func TestAdminReassign(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	if _, err := svc.Claim(ctx, "req-1", opsUser, now); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	c, err := svc.Claim(ctx, "req-1", adminUser, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("admin reassign: %v", err)
	}
	if c.AssignedToUserID != "root" {
		t.Errorf("assignee = %q, want root", c.AssignedToUserID)
	}
}

func TestReleaseRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	if _, err := svc.Claim(ctx, "req-1", opsUser, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Another ops user cannot release someone else's claim.
	if _, err := svc.Release(ctx, "req-1", opsUser2, now); !errors.Is(err, ErrForbidden) {
		t.Errorf("release of other's claim: err = %v, want ErrForbidden", err)
	}

	// The owner can.
	c, err := svc.Release(ctx, "req-1", opsUser, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if c.AssignedToUserID != "" {
		t.Errorf("assignee = %q, want empty after release", c.AssignedToUserID)
	}

	// Releasing an unassigned case is a no-op.
	if _, err := svc.Release(ctx, "req-1", opsUser2, now.Add(2*time.Minute)); err != nil {
		t.Errorf("release unassigned: %v", err)
	}
}

func TestAdminReleasesOthersClaim(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	if _, err := svc.Claim(ctx, "req-1", opsUser, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	c, err := svc.Release(ctx, "req-1", adminUser, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("admin release: %v", err)
	}
	if c.AssignedToUserID != "" {
		t.Errorf("assignee = %q, want empty", c.AssignedToUserID)
	}
}

func TestSetStatusLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	c, err := svc.SetStatus(ctx, "req-1", models.CaseInProgress, opsUser, now)
	if err != nil {
		t.Fatalf("set in_progress: %v", err)
	}
	if c.Status != models.CaseInProgress {
		t.Errorf("status = %s, want in_progress", c.Status)
	}

	c, err = svc.SetStatus(ctx, "req-1", models.CaseResolved, opsUser, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("set resolved: %v", err)
	}
	if c.ResolvedAt == nil {
		t.Error("resolvedAt not stamped")
	}

	// Closing requires admin.
	if _, err := svc.SetStatus(ctx, "req-1", models.CaseClosed, opsUser, now.Add(2*time.Minute)); !errors.Is(err, ErrForbidden) {
		t.Errorf("ops close: err = %v, want ErrForbidden", err)
	}
	c, err = svc.SetStatus(ctx, "req-1", models.CaseClosed, adminUser, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("admin close: %v", err)
	}
	if c.ClosedAt == nil {
		t.Error("closedAt not stamped")
	}

	// Closed is terminal.
	if _, err := svc.SetStatus(ctx, "req-1", models.CaseOpen, adminUser, now.Add(3*time.Minute)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("reopen closed: err = %v, want ErrInvalidTransition", err)
	}
}

func TestSetPriority(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mustTouch(t, svc, "req-1", now)

	c, err := svc.SetPriority(ctx, "req-1", models.PriorityHigh, opsUser, now)
	if err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if c.Priority != models.PriorityHigh {
		t.Errorf("priority = %s, want high", c.Priority)
	}

	if _, err := svc.SetPriority(ctx, "req-1", models.PriorityLow, plainUser, now); !errors.Is(err, ErrForbidden) {
		t.Errorf("priority without ops: err = %v, want ErrForbidden", err)
	}
}

func TestMutationsOnMissingCase(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get missing: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Claim(ctx, "nope", opsUser, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("claim missing: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Release(ctx, "nope", opsUser, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("release missing: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.SetStatus(ctx, "nope", models.CaseResolved, opsUser, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("status on missing: err = %v, want ErrNotFound", err)
	}
}

func mustTouch(t *testing.T, svc *Service, requestID string, now time.Time) {
	t.Helper()
	if _, err := svc.Touch(context.Background(), requestID, now); err != nil {
		t.Fatalf("touch %s: %v", requestID, err)
	}
}
