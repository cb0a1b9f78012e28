package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// MemoryEventStorage is an in-memory EventStorage for tests and
// single-node deployments without a ClickHouse cluster.
type MemoryEventStorage struct {
	mu     sync.RWMutex
	events []*models.ActivityEvent
}

// NewMemoryEventStorage creates an empty in-memory event store.
func NewMemoryEventStorage() *MemoryEventStorage {
	return &MemoryEventStorage{}
}

// Open is a no-op.
func (s *MemoryEventStorage) Open() error { return nil }

// Close is a no-op.
func (s *MemoryEventStorage) Close() error { return nil }

// Migrate is a no-op.
func (s *MemoryEventStorage) Migrate() error { return nil }

// Insert appends events, assigning ids where missing.
func (s *MemoryEventStorage) Insert(ctx context.Context, events []*models.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		copied := *e
		if copied.ID == "" {
			copied.ID = uuid.New().String()
		}
		s.events = append(s.events, &copied)
	}
	return nil
}

func (s *MemoryEventStorage) ListByWindow(ctx context.Context, from, to time.Time, typePrefix string, limit int) ([]*models.ActivityEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ActivityEvent
	for _, e := range s.events {
		if e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		if !strings.HasPrefix(e.Type, typePrefix) {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryEventStorage) CountByType(ctx context.Context, from, to time.Time, types []string) (map[string]int, error) {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(types))
	for _, e := range s.events {
		if e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		if wanted[e.Type] {
			counts[e.Type]++
		}
	}
	return counts, nil
}

func (s *MemoryEventStorage) ListByRequestID(ctx context.Context, requestID string, limit int) ([]*models.ActivityEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ActivityEvent
	for _, e := range s.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortEvents(events []*models.ActivityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].ID < events[j].ID
	})
}
