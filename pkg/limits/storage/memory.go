package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	consumed     int64
	resetAt      time.Time
	blockedUntil time.Time
}

// MemoryStore implements CounterStore in process memory.
type MemoryStore struct {
	entries map[string]*memoryEntry
	mu      sync.Mutex
	now     func() time.Time

	cleanupInterval time.Duration
	done            chan struct{}
	closeOnce       sync.Once
}

// NewMemoryStore creates a memory store that sweeps idle keys every minute.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanup(time.Minute)
}

// NewMemoryStoreWithCleanup creates a memory store with a custom sweep
// interval. A non-positive interval disables the sweep goroutine.
func NewMemoryStoreWithCleanup(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]*memoryEntry),
		now:             time.Now,
		cleanupInterval: interval,
		done:            make(chan struct{}),
	}
	if interval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// SetClock replaces the store's time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(ctx context.Context, key string, points int64, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{}
		s.entries[key] = e
	}
	if !now.Before(e.resetAt) {
		e.consumed = 0
		e.resetAt = now.Add(window)
	}
	e.consumed += points

	return Counter{Consumed: e.consumed, ResetIn: e.resetAt.Sub(now)}, nil
}

// Block implements CounterStore.
func (s *MemoryStore) Block(ctx context.Context, key string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{}
		s.entries[key] = e
	}
	until := s.now().Add(d)
	if until.After(e.blockedUntil) {
		e.blockedUntil = until
	}
	return nil
}

// BlockedFor implements CounterStore.
func (s *MemoryStore) BlockedFor(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	if remaining := e.blockedUntil.Sub(s.now()); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup removes keys whose window and block have both ended. It returns
// the number of keys removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.resetAt) && !now.Before(e.blockedUntil) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Close stops the sweep goroutine. Close is idempotent.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.done:
			return
		}
	}
}
