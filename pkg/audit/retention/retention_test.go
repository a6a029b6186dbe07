package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/audit/storage"
)

type failingPruner struct{ err error }

func (f failingPruner) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

func TestPruner_Prune(t *testing.T) {
	ctx := context.Background()
	sink := storage.NewMemoryStorage()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	write := func(id string, days int) {
		e := &audit.Event{ID: id, Timestamp: base, Type: audit.EventResourceAccess, Actor: "a", Action: "b"}
		if err := sink.Write(ctx, []*audit.Event{e}, audit.WriteOptions{RetentionDays: days}); err != nil {
			t.Fatal(err)
		}
	}
	write("week", 7)
	write("month", 30)
	write("forever", 0)

	p := NewPruner(sink, Config{}, nil)
	p.now = func() time.Time { return base.AddDate(0, 0, 10) }

	deleted, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 || sink.Len() != 2 {
		t.Errorf("deleted = %d, remaining = %d; want 1 and 2", deleted, sink.Len())
	}

	p.now = func() time.Time { return base.AddDate(5, 0, 0) }
	if deleted, _ := p.Prune(ctx); deleted != 1 || sink.Len() != 1 {
		t.Errorf("second prune deleted = %d, remaining = %d; want 1 and 1", deleted, sink.Len())
	}
}

func TestPruner_Error(t *testing.T) {
	boom := errors.New("disk I/O error")
	p := NewPruner(failingPruner{err: boom}, Config{}, nil)

	_, err := p.Prune(context.Background())
	var rErr *audit.RetentionError
	if !errors.As(err, &rErr) || !errors.Is(err, boom) {
		t.Errorf("Prune() error = %v, want RetentionError wrapping cause", err)
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"daily", "0 3 * * *", true, false},
		{"hourly", "0 * * * *", true, false},
		{"empty", "", false, false},
		{"invalid", "invalid cron", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(storage.NewMemoryStorage(), Config{Schedule: tt.schedule}, nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := p.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if got := p.scheduler.IsRunning(); got != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", got, tt.wantRunning)
			}
			if tt.wantRunning {
				next := p.NextPruning()
				if next == nil || !next.After(time.Now()) {
					t.Errorf("NextPruning() = %v, want a future time", next)
				}
			}
			p.Stop()
			if p.scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_StopsOnContextDone(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), Config{Schedule: "@every 1h"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not stop after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
