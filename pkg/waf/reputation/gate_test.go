package reputation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubService struct {
	calls atomic.Int32
	score float64
	err   error
	delay time.Duration
}

func (s *stubService) Lookup(ctx context.Context, ip string) (float64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.score, s.err
}

func TestGate_CachesScore(t *testing.T) {
	svc := &stubService{score: 80}
	g := NewGate(svc, Config{Threshold: 50, CacheTTL: time.Minute}, nil)
	defer g.Close()

	for i := 0; i < 3; i++ {
		if got := g.Score(context.Background(), "203.0.113.7"); got != 80 {
			t.Errorf("Score() = %v, want 80", got)
		}
	}
	if svc.calls.Load() != 1 {
		t.Errorf("lookups = %d, want 1", svc.calls.Load())
	}
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}

func TestGate_ExpiryAndEviction(t *testing.T) {
	svc := &stubService{score: 80}
	g := NewGate(svc, Config{Threshold: 50, CacheTTL: 30 * time.Millisecond}, nil)
	defer g.Close()

	g.Score(context.Background(), "203.0.113.7")
	time.Sleep(80 * time.Millisecond)

	if g.Len() != 0 {
		t.Errorf("Len() after TTL = %d, want 0 (timer eviction)", g.Len())
	}
	g.Score(context.Background(), "203.0.113.7")
	if svc.calls.Load() != 2 {
		t.Errorf("lookups = %d, want 2 after expiry", svc.calls.Load())
	}
}

func TestGate_ReadTimeExpiry(t *testing.T) {
	svc := &stubService{score: 80}
	g := NewGate(svc, Config{Threshold: 50, CacheTTL: time.Hour}, nil)
	defer g.Close()

	now := time.Now()
	g.now = func() time.Time { return now }
	g.Score(context.Background(), "203.0.113.7")

	now = now.Add(time.Hour)
	g.Score(context.Background(), "203.0.113.7")
	if svc.calls.Load() != 2 {
		t.Errorf("lookups = %d, want 2 (expired entry must not be served)", svc.calls.Load())
	}
}

func TestGate_FailOpen(t *testing.T) {
	svc := &stubService{err: errors.New("connection refused")}
	g := NewGate(svc, Config{Threshold: 40, CacheTTL: time.Minute}, nil)
	defer g.Close()

	score := g.Score(context.Background(), "198.51.100.1")
	if score != 41 {
		t.Errorf("Score() = %v, want threshold+1 = 41", score)
	}
	if !g.Allowed(score) {
		t.Error("fail-open score must pass the gate")
	}
	if g.Len() != 0 {
		t.Error("failed lookups must not be cached")
	}
}

func TestGate_Allowed(t *testing.T) {
	g := NewGate(&stubService{}, Config{Threshold: 50}, nil)
	if g.Allowed(49.9) {
		t.Error("49.9 should be blocked")
	}
	if !g.Allowed(50) {
		t.Error("50 should pass")
	}
}

func TestGate_CollapsesConcurrentLookups(t *testing.T) {
	svc := &stubService{score: 90, delay: 50 * time.Millisecond}
	g := NewGate(svc, Config{Threshold: 50, CacheTTL: time.Minute}, nil)
	defer g.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := g.Score(context.Background(), "203.0.113.9"); got != 90 {
				t.Errorf("Score() = %v, want 90", got)
			}
		}()
	}
	wg.Wait()

	if n := svc.calls.Load(); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}
}

// gatedService blocks each lookup until released or its context ends.
type gatedService struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (s *gatedService) Lookup(ctx context.Context, ip string) (float64, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-s.release:
		return 75, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestGate_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	svc := &gatedService{started: make(chan struct{}), release: make(chan struct{})}
	g := NewGate(svc, Config{Threshold: 50, CacheTTL: time.Minute, LookupTimeout: 5 * time.Second}, nil)
	defer g.Close()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan float64, 1)
	go func() { first <- g.Score(firstCtx, "198.51.100.7") }()
	<-svc.started

	second := make(chan float64, 1)
	go func() { second <- g.Score(context.Background(), "198.51.100.7") }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if got := <-first; got != 51 {
		t.Errorf("cancelled caller Score() = %v, want fail-open 51", got)
	}
	close(svc.release)

	if got := <-second; got != 75 {
		t.Errorf("waiting caller Score() = %v, want 75", got)
	}
	if n := svc.calls.Load(); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}
	if got := g.Score(context.Background(), "198.51.100.7"); got != 75 {
		t.Errorf("cached Score() = %v, want 75", got)
	}
}
