// Package storage provides counter stores for the rate limiter.
//
// A CounterStore keeps, per key, the points consumed in the current fixed
// window and an optional block that outlives window resets. Three
// implementations are provided:
//
//   - Memory: process-local, the default for single-instance deployments
//   - Redis: shared across instances; increments are atomic Lua scripts
//   - SQLite: process-local but durable across restarts
//
// # Usage
//
//	store := storage.NewMemoryStore()
//	defer store.Close()
//
//	c, err := store.Increment(ctx, "rl:203.0.113.7", 1, time.Minute)
//	if c.Consumed > 3 {
//	    store.Block(ctx, "rl:203.0.113.7", 5*time.Minute)
//	}
//
// # Thread Safety
//
// All stores are safe for concurrent use. Increment is atomic per key.
package storage
