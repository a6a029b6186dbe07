package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript adds ARGV[1] points and starts a window of ARGV[2] ms on
// the first increment. It returns {consumed, pttl}.
var incrementScript = redis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == tonumber(ARGV[1]) or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {current, ttl}
`)

// blockScript extends a block to ARGV[1] ms unless a longer one is active.
var blockScript = redis.NewScript(`
local ttl = redis.call("PTTL", KEYS[1])
if ttl < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
end
return 1
`)

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient parses cfg.URL, applies pool overrides and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore implements CounterStore on a shared Redis server so that all
// instances enforce one budget per identity.
type RedisStore struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromConfig dials Redis and returns a store that closes the
// connection on Close.
func NewRedisStoreFromConfig(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, owned: true}, nil
}

// Increment implements CounterStore.
func (s *RedisStore) Increment(ctx context.Context, key string, points int64, window time.Duration) (Counter, error) {
	vals, err := incrementScript.Run(ctx, s.client, []string{key}, points, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, fmt.Errorf("redis increment %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Counter{}, fmt.Errorf("redis increment %s: unexpected reply length %d", key, len(vals))
	}
	return Counter{
		Consumed: vals[0],
		ResetIn:  time.Duration(vals[1]) * time.Millisecond,
	}, nil
}

// Block implements CounterStore.
func (s *RedisStore) Block(ctx context.Context, key string, d time.Duration) error {
	if err := blockScript.Run(ctx, s.client, []string{blockKey(key)}, d.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis block %s: %w", key, err)
	}
	return nil
}

// BlockedFor implements CounterStore.
func (s *RedisStore) BlockedFor(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, blockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl %s: %w", key, err)
	}
	// -1 and -2 (no expiry, missing key) come back as raw nanoseconds.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// Close implements CounterStore.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func blockKey(key string) string {
	return key + ":block"
}
