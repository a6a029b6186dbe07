// Package ratelimit enforces a points budget per requester identity.
//
// Each identity may consume Points within a fixed window of Duration. The
// request that exhausts the budget blocks the identity for BlockDuration;
// the block is a hard floor that holds even if the counter window resets in
// the meantime.
//
// Counters live in a storage.CounterStore, either process-local (memory,
// SQLite) or shared through Redis when enforcement must hold across
// instances.
//
//	limiter, _ := ratelimit.NewLimiter(ratelimit.Config{
//	    Points:        100,
//	    Duration:      time.Minute,
//	    BlockDuration: 5 * time.Minute,
//	}, storage.NewMemoryStore(), logger)
//
//	res, err := limiter.Consume(ctx, req.SourceIP)
//	var limited *ratelimit.RateLimitedError
//	if errors.As(err, &limited) {
//	    // reject, retry after limited.RetryAfter
//	}
package ratelimit
