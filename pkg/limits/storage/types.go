package storage

import (
	"context"
	"time"
)

// Counter is the state of a key's window after an increment.
type Counter struct {
	// Consumed is the number of points consumed in the current window,
	// including the increment that produced this value.
	Consumed int64

	// ResetIn is the time until the current window closes.
	ResetIn time.Duration
}

// CounterStore is an atomic increment-with-expiry store keyed by identity.
type CounterStore interface {
	// Increment adds points to key's counter. If no window is active, a new
	// window of length window starts with this increment.
	Increment(ctx context.Context, key string, points int64, window time.Duration) (Counter, error)

	// Block marks key as blocked for d. An existing longer block is kept.
	Block(ctx context.Context, key string, d time.Duration) error

	// BlockedFor returns the remaining block duration for key, or zero.
	BlockedFor(ctx context.Context, key string) (time.Duration, error)

	// Close releases any resources held by the store.
	Close() error
}
