// Package reputation scores source IPs through an external reputation
// service, caching scores for a configured TTL.
//
// Lookups fail open: when the service is unreachable the gate reports
// Threshold+1 so that an outage of the reputation service never turns into
// a denial of service against the protected system.
package reputation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service looks up the trust score of an IP. Higher is more trusted.
type Service interface {
	Lookup(ctx context.Context, ip string) (float64, error)
}

// Config configures a Gate.
type Config struct {
	Threshold     float64       // Scores below this block. Default: 50
	CacheTTL      time.Duration // Default: 5 minutes
	LookupTimeout time.Duration // Upper bound for one service call. Default: 500ms
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:     50,
		CacheTTL:      5 * time.Minute,
		LookupTimeout: 500 * time.Millisecond,
	}
}

type entry struct {
	score     float64
	expiresAt time.Time
	timer     *time.Timer
}

// Gate caches reputation scores per IP.
type Gate struct {
	service Service
	config  Config
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
	now     func() time.Time
}

// NewGate creates a new reputation gate.
func NewGate(service Service, cfg Config, logger *slog.Logger) *Gate {
	def := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		service: service,
		config:  cfg,
		logger:  logger.With("component", "waf.reputation"),
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Threshold returns the configured block threshold.
func (g *Gate) Threshold() float64 {
	return g.config.Threshold
}

// Allowed reports whether score passes the gate.
func (g *Gate) Allowed(score float64) bool {
	return score >= g.config.Threshold
}

// Score returns the trust score for ip. Cached scores are served until they
// expire. Lookup failures yield Threshold+1 and are not cached.
func (g *Gate) Score(ctx context.Context, ip string) float64 {
	if score, ok := g.cached(ip); ok {
		return score
	}

	// The shared lookup is detached from the caller that started it so a
	// cancelled request does not fail the others waiting on the same ip.
	ch := g.group.DoChan(ip, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.LookupTimeout)
		defer cancel()
		score, err := g.service.Lookup(lookupCtx, ip)
		if err != nil {
			return nil, err
		}
		g.store(ip, score)
		return score, nil
	})

	select {
	case <-ctx.Done():
		return g.config.Threshold + 1
	case res := <-ch:
		if res.Err != nil {
			g.logger.Warn("reputation lookup failed, failing open",
				"ip", ip,
				"error", res.Err,
			)
			return g.config.Threshold + 1
		}
		return res.Val.(float64)
	}
}

// Len returns the number of cached scores.
func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Close stops pending eviction timers and drops the cache.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.entries {
		e.timer.Stop()
	}
	g.entries = make(map[string]*entry)
}

func (g *Gate) cached(ip string) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[ip]
	if !ok || !g.now().Before(e.expiresAt) {
		return 0, false
	}
	return e.score, true
}

func (g *Gate) store(ip string, score float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.entries[ip]; ok {
		old.timer.Stop()
	}
	e := &entry{score: score, expiresAt: g.now().Add(g.config.CacheTTL)}
	e.timer = time.AfterFunc(g.config.CacheTTL, func() { g.evict(ip, e) })
	g.entries[ip] = e
}

// evict removes ip only if it still maps to e, so a timer belonging to a
// replaced entry never drops its successor.
func (g *Gate) evict(ip string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.entries[ip]; ok && cur == e {
		delete(g.entries, ip)
	}
}
