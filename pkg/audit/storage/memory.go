package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/audit/query"
)

type memoryEntry struct {
	event     *audit.Event
	expiresAt time.Time
}

// MemoryStorage keeps events in a map.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	writes  int
	closed  bool
	now     func() time.Time
}

// NewMemoryStorage creates an empty in-memory sink.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Write stores copies of events. Existing ids are left untouched.
func (s *MemoryStorage) Write(ctx context.Context, events []*audit.Event, opts audit.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "write", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audit.NewStorageError("memory", "write", audit.ErrClosed)
	}
	for _, e := range events {
		if _, ok := s.entries[e.ID]; ok {
			continue
		}
		s.entries[e.ID] = memoryEntry{event: e.Clone(), expiresAt: expiresAt(e, opts)}
	}
	s.writes++
	return nil
}

// Query returns matching, unexpired events ordered by timestamp.
func (s *MemoryStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.NewStorageError("memory", "query", err)
	}

	s.mu.RLock()
	now := s.now()
	var results []*audit.Event
	for _, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
			continue
		}
		if q.Matches(entry.event) {
			results = append(results, entry.event.Clone())
		}
	}
	s.mu.RUnlock()

	asc := q.SortOrder == "asc"
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if asc {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return query.Paginate(results, q), nil
}

// DeleteExpired implements audit.Pruner.
func (s *MemoryStorage) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored events, expired or not.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Writes returns the number of successful Write calls.
func (s *MemoryStorage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Close marks the sink closed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
