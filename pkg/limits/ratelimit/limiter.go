package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"bastion-hq/aegis/pkg/limits/storage"
	"bastion-hq/aegis/pkg/waf"
)

// Limiter consumes points per identity against a CounterStore.
type Limiter struct {
	config Config
	store  storage.CounterStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter creates a new Limiter.
func NewLimiter(config Config, store storage.CounterStore, logger *slog.Logger) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rl:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		config: config,
		store:  store,
		logger: logger.With("component", "limits.ratelimit"),
		now:    time.Now,
	}, nil
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// Consume takes one point from identity's budget.
func (l *Limiter) Consume(ctx context.Context, identity string) (*CheckResult, error) {
	return l.ConsumePoints(ctx, identity, 1)
}

// ConsumePoints takes points from identity's budget. It returns a
// *RateLimitedError when the identity is blocked or the budget is
// exhausted, and a *waf.DependencyError when the counter store fails.
func (l *Limiter) ConsumePoints(ctx context.Context, identity string, points int64) (*CheckResult, error) {
	key := l.config.KeyPrefix + identity

	blocked, err := l.store.BlockedFor(ctx, key)
	if err != nil {
		return nil, l.storeError(ctx, err)
	}
	if blocked > 0 {
		return &CheckResult{Allowed: false, Limit: l.config.Points, RetryAfter: blocked},
			&RateLimitedError{Identity: identity, RetryAfter: blocked, Blocked: true}
	}

	counter, err := l.store.Increment(ctx, key, points, l.config.Duration)
	if err != nil {
		return nil, l.storeError(ctx, err)
	}

	res := &CheckResult{
		Allowed:   true,
		Limit:     l.config.Points,
		Remaining: max(l.config.Points-counter.Consumed, 0),
		Reset:     l.now().Add(counter.ResetIn),
	}
	if counter.Consumed <= l.config.Points {
		return res, nil
	}

	res.Allowed = false
	res.RetryAfter = counter.ResetIn
	if l.config.BlockDuration > 0 {
		if err := l.store.Block(ctx, key, l.config.BlockDuration); err != nil {
			return nil, l.storeError(ctx, err)
		}
		res.RetryAfter = l.config.BlockDuration
		l.logger.Info("identity blocked",
			"identity", identity,
			"consumed", counter.Consumed,
			"block_duration", l.config.BlockDuration,
		)
	}
	return res, &RateLimitedError{Identity: identity, RetryAfter: res.RetryAfter}
}

func (l *Limiter) storeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return waf.NewDependencyError("counter_store", err)
}
