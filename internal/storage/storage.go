// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

var (
	// ErrNotFound indicates an absent row.
	ErrNotFound = errors.New("not found")
	// ErrCaseConflict indicates a claim lost the compare-and-set race.
	ErrCaseConflict = errors.New("case already claimed")
)

// Storage is the main interface for control-plane persistence.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	AlertStates() AlertStateRepository
	AlertEvents() AlertEventRepository
	Deliveries() DeliveryRepository
	Cases() CaseRepository
	Ledger() LedgerRepository
	Audit() AuditRepository
}

// AlertStateRepository persists one row per rule key.
type AlertStateRepository interface {
	Get(ctx context.Context, key string) (*models.AlertState, error)
	List(ctx context.Context) ([]*models.AlertState, error)
	// Upsert is last-write-wins on key; concurrent evaluation ticks
	// may race and the payload-hash cooldown absorbs re-detected
	// transitions.
	Upsert(ctx context.Context, state *models.AlertState) error
	// RecordNotifyAttempt advances lastNotifiedAt/lastPayloadHash.
	// lastNotifiedAt never moves backward.
	RecordNotifyAttempt(ctx context.Context, key string, at time.Time, payloadHash string) error
	SetSnooze(ctx context.Context, key string, until *time.Time) error
}

// AlertEventRepository persists append-only transition rows.
type AlertEventRepository interface {
	Create(ctx context.Context, event *models.AlertEvent) error
	GetByID(ctx context.Context, id string) (*models.AlertEvent, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AlertEvent, error)
	Acknowledge(ctx context.Context, id, actorID string, at time.Time) error
}

// DeliveryRepository persists one row per delivery attempt. Rows are
// never deleted; the optimistic "sent" row is finalized in place.
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *models.AlertDelivery) error
	Finalize(ctx context.Context, id string, status models.DeliveryStatus, maskedReason string) error
	ListByEvent(ctx context.Context, eventID string) ([]*models.AlertDelivery, error)
	CountByEvent(ctx context.Context, eventID string) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AlertDelivery, error)
}

// CaseFilter narrows case listings for the incident queue.
type CaseFilter struct {
	Status     models.CaseStatus
	AssignedTo string
	Limit      int
}

// CaseRepository persists incident cases keyed by request id.
type CaseRepository interface {
	Get(ctx context.Context, requestID string) (*models.Case, error)
	List(ctx context.Context, filter CaseFilter) ([]*models.Case, error)
	Create(ctx context.Context, c *models.Case) error
	// Touch refreshes lastTouchedAt, creating the case on first touch.
	Touch(ctx context.Context, requestID string, now time.Time) (*models.Case, error)
	// Claim is an atomic conditional update: it succeeds only while
	// the stored assignee is empty or equals expectedOwner, otherwise
	// ErrCaseConflict.
	Claim(ctx context.Context, requestID, userID, expectedOwner string, now time.Time) error
	Release(ctx context.Context, requestID string, now time.Time) error
	UpdateStatus(ctx context.Context, requestID string, status models.CaseStatus, now time.Time) error
	UpdatePriority(ctx context.Context, requestID string, priority models.CasePriority, now time.Time) error
}

// LedgerRepository reads credit-ledger rows supplied by the billing
// collaborator.
type LedgerRepository interface {
	Insert(ctx context.Context, requestID string, entry *models.LedgerEntry) error
	List(ctx context.Context, from, to time.Time) ([]*models.LedgerEntry, error)
	ListByRequest(ctx context.Context, requestID string) ([]*models.LedgerEntry, error)
	Balance(ctx context.Context) (int, error)
}

// AuditRepository persists best-effort audit rows.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

// EventStorage is the high-volume activity/event store. Raw event rows
// arrive from external collaborators and are queried per evaluation
// window.
type EventStorage interface {
	Open() error
	Close() error
	Migrate() error
	Insert(ctx context.Context, events []*models.ActivityEvent) error
	ListByWindow(ctx context.Context, from, to time.Time, typePrefix string, limit int) ([]*models.ActivityEvent, error)
	CountByType(ctx context.Context, from, to time.Time, types []string) (map[string]int, error)
	ListByRequestID(ctx context.Context, requestID string, limit int) ([]*models.ActivityEvent, error)
}
