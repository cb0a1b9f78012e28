// Package cases implements the incident-case workflow: a small
// per-request state machine with claim/release assignment, optimistic
// conflict detection, and a derived reason explaining why a case exists.
package cases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/masking"
	"github.com/good-yellow-bee/opswatch/internal/metrics"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

var (
	// ErrForbidden means the actor's resolved roles do not allow the
	// operation. Role facts come from the calling layer.
	ErrForbidden = errors.New("actor not authorized for this case operation")

	// ErrInvalidTransition means the requested status change is not a
	// legal lifecycle move.
	ErrInvalidTransition = errors.New("invalid case status transition")
)

// ConflictError reports a lost claim race, surfacing the current owner
// so the caller can show who won instead of silently overwriting.
type ConflictError struct {
	RequestID    string
	CurrentOwner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("case %s already claimed by %s", e.RequestID, e.CurrentOwner)
}

// Service coordinates case mutations and their audit trail.
type Service struct {
	cases storage.CaseRepository
	audit storage.AuditRepository
}

func NewService(cases storage.CaseRepository, audit storage.AuditRepository) *Service {
	return &Service{cases: cases, audit: audit}
}

// Touch creates the case on first contact or refreshes lastTouchedAt.
func (s *Service) Touch(ctx context.Context, requestID string, now time.Time) (*models.Case, error) {
	c, err := s.cases.Touch(ctx, requestID, now)
	if err != nil {
		return nil, fmt.Errorf("touch case %s: %w", requestID, err)
	}
	return c, nil
}

// Get returns one case, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, requestID string) (*models.Case, error) {
	c, err := s.cases.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

// List returns cases matching the filter.
func (s *Service) List(ctx context.Context, filter storage.CaseFilter) ([]*models.Case, error) {
	return s.cases.List(ctx, filter)
}

// Claim assigns the case to the actor. Claiming a case someone else
// holds requires admin; losing the conditional update to a concurrent
// claimer returns *ConflictError with the winner's id.
func (s *Service) Claim(ctx context.Context, requestID string, actor models.Actor, now time.Time) (*models.Case, error) {
	if !actor.IsOps {
		return nil, ErrForbidden
	}

	current, err := s.cases.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, storage.ErrNotFound
	}

	expectedOwner := ""
	switch {
	case current.AssignedToUserID == actor.UserID:
		// Re-claim by the current owner is idempotent; condition the
		// write on them still holding it.
		expectedOwner = actor.UserID
	case current.AssignedToUserID != "":
		if !actor.IsAdmin {
			return nil, &ConflictError{RequestID: requestID, CurrentOwner: current.AssignedToUserID}
		}
		// Admin reassign: condition the write on the owner seen above so
		// a racing claim still loses cleanly instead of being clobbered.
		expectedOwner = current.AssignedToUserID
	}

	if err := s.cases.Claim(ctx, requestID, actor.UserID, expectedOwner, now); err != nil {
		if errors.Is(err, storage.ErrCaseConflict) {
			metrics.CaseConflicts.Inc()
			winner, gerr := s.cases.Get(ctx, requestID)
			if gerr != nil {
				return nil, &ConflictError{RequestID: requestID}
			}
			return nil, &ConflictError{RequestID: requestID, CurrentOwner: winner.AssignedToUserID}
		}
		return nil, fmt.Errorf("claim case %s: %w", requestID, err)
	}

	s.auditNote(ctx, "case.claim", requestID, actor.UserID, "claimed")
	metrics.CaseTransitions.WithLabelValues("claimed").Inc()
	return s.cases.Get(ctx, requestID)
}

// Release clears the assignment. Any assignee may release their own
// claim; releasing someone else's requires admin.
func (s *Service) Release(ctx context.Context, requestID string, actor models.Actor, now time.Time) (*models.Case, error) {
	if !actor.IsOps {
		return nil, ErrForbidden
	}

	current, err := s.cases.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, storage.ErrNotFound
	}
	if current.AssignedToUserID == "" {
		return current, nil // nothing to release
	}
	if current.AssignedToUserID != actor.UserID && !actor.IsAdmin {
		return nil, ErrForbidden
	}

	if err := s.cases.Release(ctx, requestID, now); err != nil {
		return nil, fmt.Errorf("release case %s: %w", requestID, err)
	}

	s.auditNote(ctx, "case.release", requestID, actor.UserID, "released claim held by "+current.AssignedToUserID)
	metrics.CaseTransitions.WithLabelValues("released").Inc()
	return s.cases.Get(ctx, requestID)
}

// SetStatus moves the case through its lifecycle. Any ops actor may
// move status except into closed, which requires admin. Closed is
// terminal.
func (s *Service) SetStatus(ctx context.Context, requestID string, status models.CaseStatus, actor models.Actor, now time.Time) (*models.Case, error) {
	if !actor.IsOps {
		return nil, ErrForbidden
	}
	if status == models.CaseClosed && !actor.IsAdmin {
		return nil, ErrForbidden
	}

	current, err := s.cases.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, storage.ErrNotFound
	}
	if current.Status == models.CaseClosed {
		return nil, ErrInvalidTransition
	}
	if current.Status == status {
		return current, nil
	}

	if err := s.cases.UpdateStatus(ctx, requestID, status, now); err != nil {
		return nil, fmt.Errorf("update case %s status: %w", requestID, err)
	}

	s.auditNote(ctx, "case.status", requestID, actor.UserID, string(current.Status)+" -> "+string(status))
	metrics.CaseTransitions.WithLabelValues(string(status)).Inc()
	return s.cases.Get(ctx, requestID)
}

// SetPriority changes the case priority.
func (s *Service) SetPriority(ctx context.Context, requestID string, priority models.CasePriority, actor models.Actor, now time.Time) (*models.Case, error) {
	if !actor.IsOps {
		return nil, ErrForbidden
	}

	current, err := s.cases.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, storage.ErrNotFound
	}
	if err := s.cases.UpdatePriority(ctx, requestID, priority, now); err != nil {
		return nil, fmt.Errorf("update case %s priority: %w", requestID, err)
	}

	s.auditNote(ctx, "case.priority", requestID, actor.UserID, string(priority))
	return s.cases.Get(ctx, requestID)
}

// auditNote appends a best-effort audit row. Audit failures never
// abort the primary operation.
func (s *Service) auditNote(ctx context.Context, kind, requestID, actorID, detail string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		RequestID: requestID,
		ActorID:   actorID,
		Detail:    masking.ReasonString(detail),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Printf("Warning: audit append failed for %s: %v", kind, err)
	}
}
