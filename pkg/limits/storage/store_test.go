package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// storeFactory returns a store and a function advancing its notion of time.
type storeFactory func(t *testing.T) (CounterStore, func(time.Duration))

func memoryFactory(t *testing.T) (CounterStore, func(time.Duration)) {
	clock := newTestClock()
	s := NewMemoryStoreWithCleanup(0)
	s.SetClock(clock.Now)
	t.Cleanup(func() { s.Close() })
	return s, clock.Advance
}

func sqliteFactory(t *testing.T) (CounterStore, func(time.Duration)) {
	clock := newTestClock()
	s, err := NewSQLiteStore(SQLiteStoreConfig{DBPath: filepath.Join(t.TempDir(), "counters.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	s.now = clock.Now
	t.Cleanup(func() { s.Close() })
	return s, clock.Advance
}

func redisFactory(t *testing.T) (CounterStore, func(time.Duration)) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr.FastForward
}

var factories = map[string]storeFactory{
	"memory": memoryFactory,
	"sqlite": sqliteFactory,
	"redis":  redisFactory,
}

func TestStore_IncrementWindow(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			store, advance := factory(t)
			ctx := context.Background()

			for i := int64(1); i <= 3; i++ {
				c, err := store.Increment(ctx, "rl:a", 1, time.Minute)
				if err != nil {
					t.Fatalf("Increment() error = %v", err)
				}
				if c.Consumed != i {
					t.Errorf("Consumed = %d, want %d", c.Consumed, i)
				}
				if c.ResetIn <= 0 || c.ResetIn > time.Minute {
					t.Errorf("ResetIn = %v, want (0, 1m]", c.ResetIn)
				}
			}

			c, err := store.Increment(ctx, "rl:a", 5, time.Minute)
			if err != nil {
				t.Fatal(err)
			}
			if c.Consumed != 8 {
				t.Errorf("Consumed after 5 points = %d, want 8", c.Consumed)
			}

			advance(61 * time.Second)
			c, err = store.Increment(ctx, "rl:a", 1, time.Minute)
			if err != nil {
				t.Fatal(err)
			}
			if c.Consumed != 1 {
				t.Errorf("Consumed after window reset = %d, want 1", c.Consumed)
			}
		})
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			store.Increment(ctx, "rl:a", 2, time.Minute)
			c, err := store.Increment(ctx, "rl:b", 1, time.Minute)
			if err != nil {
				t.Fatal(err)
			}
			if c.Consumed != 1 {
				t.Errorf("Consumed(b) = %d, want 1", c.Consumed)
			}
		})
	}
}

func TestStore_Block(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			store, advance := factory(t)
			ctx := context.Background()

			if d, err := store.BlockedFor(ctx, "rl:a"); err != nil || d != 0 {
				t.Fatalf("BlockedFor(unblocked) = %v, %v", d, err)
			}

			if err := store.Block(ctx, "rl:a", 5*time.Minute); err != nil {
				t.Fatalf("Block() error = %v", err)
			}
			// A shorter block must not shorten the active one.
			if err := store.Block(ctx, "rl:a", time.Minute); err != nil {
				t.Fatalf("Block() error = %v", err)
			}

			advance(2 * time.Minute)
			d, err := store.BlockedFor(ctx, "rl:a")
			if err != nil {
				t.Fatal(err)
			}
			if d <= 2*time.Minute || d > 3*time.Minute {
				t.Errorf("BlockedFor() = %v, want ~3m", d)
			}

			advance(3*time.Minute + time.Second)
			if d, _ := store.BlockedFor(ctx, "rl:a"); d != 0 {
				t.Errorf("BlockedFor() after expiry = %v, want 0", d)
			}
		})
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	clock := newTestClock()
	s := NewMemoryStoreWithCleanup(0)
	s.SetClock(clock.Now)
	defer s.Close()
	ctx := context.Background()

	s.Increment(ctx, "a", 1, time.Minute)
	s.Increment(ctx, "b", 1, time.Minute)
	s.Block(ctx, "b", time.Hour)

	clock.Advance(2 * time.Minute)
	if n := s.Cleanup(); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (blocked key kept)", s.Len())
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStoreWithCleanup(0)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Increment(ctx, "a", 1, time.Minute); err == nil {
		t.Error("Increment() with cancelled context should fail")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(SQLiteStoreConfig{DBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	s.Increment(ctx, "rl:a", 2, time.Hour)
	s.Block(ctx, "rl:a", time.Hour)
	s.Close()

	s, err = NewSQLiteStore(SQLiteStoreConfig{DBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c, err := s.Increment(ctx, "rl:a", 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if c.Consumed != 3 {
		t.Errorf("Consumed after reopen = %d, want 3", c.Consumed)
	}
	if d, _ := s.BlockedFor(ctx, "rl:a"); d == 0 {
		t.Error("block should survive reopen")
	}

	n, err := s.Cleanup(ctx, time.Now().Add(3*time.Hour))
	if err != nil || n != 1 {
		t.Errorf("Cleanup() = %d, %v; want 1", n, err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteStoreConfig{}); err == nil {
		t.Error("NewSQLiteStore() without path should fail")
	}
}

func TestNewRedisStoreFromConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	s, err := NewRedisStoreFromConfig(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStoreFromConfig() error = %v", err)
	}
	defer s.Close()

	if _, err := s.Increment(context.Background(), "rl:x", 1, time.Second); err != nil {
		t.Errorf("Increment() error = %v", err)
	}
	if _, err := NewRedisStoreFromConfig(context.Background(), RedisConfig{}); err == nil {
		t.Error("empty url should fail")
	}
}
