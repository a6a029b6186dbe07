package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bastion-hq/aegis/pkg/limits/storage"
	"bastion-hq/aegis/pkg/waf"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

func newMemoryLimiter(t *testing.T, cfg Config) (*Limiter, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStoreWithCleanup(0)
	store.SetClock(clock.Now)
	t.Cleanup(func() { store.Close() })

	l, err := NewLimiter(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	l.now = clock.Now
	return l, clock
}

func outcome(err error) waf.Action {
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return waf.ActionRateLimited
	}
	if err != nil {
		return "ERROR"
	}
	return waf.ActionAllow
}

func TestLimiter_ExhaustionSequence(t *testing.T) {
	l, _ := newMemoryLimiter(t, Config{Points: 3, Duration: 60 * time.Second, BlockDuration: 5 * time.Minute})
	ctx := context.Background()

	want := []waf.Action{waf.ActionAllow, waf.ActionAllow, waf.ActionAllow, waf.ActionRateLimited}
	for i, w := range want {
		_, err := l.Consume(ctx, "203.0.113.7")
		if got := outcome(err); got != w {
			t.Errorf("consume %d = %s, want %s", i+1, got, w)
		}
	}
}

func TestLimiter_BlockOutlivesWindow(t *testing.T) {
	l, clock := newMemoryLimiter(t, Config{Points: 3, Duration: 60 * time.Second, BlockDuration: 5 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		l.Consume(ctx, "203.0.113.7")
	}

	// The window has reset but the block holds.
	clock.Advance(61 * time.Second)
	res, err := l.Consume(ctx, "203.0.113.7")
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("Consume() after window reset error = %v, want RateLimitedError", err)
	}
	if !limited.Blocked {
		t.Error("refusal should come from the block")
	}
	if res.RetryAfter <= 3*time.Minute || res.RetryAfter > 4*time.Minute {
		t.Errorf("RetryAfter = %v, want ~3m59s", res.RetryAfter)
	}

	clock.Advance(4 * time.Minute)
	if _, err := l.Consume(ctx, "203.0.113.7"); err != nil {
		t.Errorf("Consume() after block expiry error = %v", err)
	}
}

func TestLimiter_WithoutBlockDuration(t *testing.T) {
	l, clock := newMemoryLimiter(t, Config{Points: 1, Duration: 10 * time.Second})
	ctx := context.Background()

	l.Consume(ctx, "id")
	res, err := l.Consume(ctx, "id")
	if outcome(err) != waf.ActionRateLimited {
		t.Fatalf("second consume error = %v", err)
	}
	if res.RetryAfter != 10*time.Second {
		t.Errorf("RetryAfter = %v, want window reset 10s", res.RetryAfter)
	}

	clock.Advance(10 * time.Second)
	if _, err := l.Consume(ctx, "id"); err != nil {
		t.Errorf("Consume() after window error = %v", err)
	}
}

func TestLimiter_RemainingAndIdentities(t *testing.T) {
	l, _ := newMemoryLimiter(t, Config{Points: 5, Duration: time.Minute})
	ctx := context.Background()

	res, err := l.ConsumePoints(ctx, "a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Remaining != 3 || res.Limit != 5 || !res.Allowed {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = l.Consume(ctx, "b")
	if err != nil || res.Remaining != 4 {
		t.Errorf("identity b should have its own budget, got %+v, %v", res, err)
	}
}

func TestLimiter_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l, err := NewLimiter(Config{Points: 3, Duration: 60 * time.Second, BlockDuration: 5 * time.Minute},
		storage.NewRedisStore(client), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	want := []waf.Action{waf.ActionAllow, waf.ActionAllow, waf.ActionAllow, waf.ActionRateLimited}
	for i, w := range want {
		_, err := l.Consume(ctx, "198.51.100.4")
		if got := outcome(err); got != w {
			t.Errorf("consume %d = %s, want %s", i+1, got, w)
		}
	}

	mr.FastForward(61 * time.Second)
	if got := outcome(func() error { _, err := l.Consume(ctx, "198.51.100.4"); return err }()); got != waf.ActionRateLimited {
		t.Errorf("after window reset = %s, want RATE_LIMITED", got)
	}
	if !mr.Exists("rl:198.51.100.4:block") {
		t.Error("block key should exist in redis")
	}
}

type failingStore struct {
	storage.CounterStore
	calls atomic.Int32
}

func (f *failingStore) BlockedFor(ctx context.Context, key string) (time.Duration, error) {
	f.calls.Add(1)
	return 0, errors.New("connection reset")
}

func TestLimiter_StoreFailure(t *testing.T) {
	l, err := NewLimiter(Config{Points: 1, Duration: time.Second}, &failingStore{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Consume(context.Background(), "id")
	var dep *waf.DependencyError
	if !errors.As(err, &dep) {
		t.Errorf("error = %v, want DependencyError", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Points: 1, Duration: time.Second}, false},
		{"zero points", Config{Points: 0, Duration: time.Second}, true},
		{"zero duration", Config{Points: 1}, true},
		{"negative block", Config{Points: 1, Duration: time.Second, BlockDuration: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
