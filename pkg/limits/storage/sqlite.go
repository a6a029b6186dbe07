package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements CounterStore on a local SQLite database so counters
// and blocks survive process restarts. It is suitable for single-instance
// deployments.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once

	checkpointInterval time.Duration
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

const counterSchema = `
CREATE TABLE IF NOT EXISTS rate_counters (
	key TEXT PRIMARY KEY,
	consumed INTEGER NOT NULL,
	reset_at INTEGER NOT NULL,
	blocked_until INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rate_counters_reset ON rate_counters(reset_at);
`

// NewSQLiteStore opens (or creates) a counter database at cfg.DBPath.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer; one connection also serializes
	// the read-modify-write in Increment.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(counterSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:                 db,
		dbPath:             cfg.DBPath,
		now:                time.Now,
		done:               make(chan struct{}),
		checkpointInterval: cfg.CheckpointInterval,
	}
	go s.checkpointLoop()
	return s, nil
}

// Increment implements CounterStore.
func (s *SQLiteStore) Increment(ctx context.Context, key string, points int64, window time.Duration) (Counter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counter{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var consumed, resetAtMs int64
	err = tx.QueryRowContext(ctx, `SELECT consumed, reset_at FROM rate_counters WHERE key = ?`, key).Scan(&consumed, &resetAtMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		consumed, resetAtMs = 0, 0
	case err != nil:
		return Counter{}, fmt.Errorf("load counter: %w", err)
	}

	resetAt := time.UnixMilli(resetAtMs)
	if !now.Before(resetAt) {
		consumed = 0
		resetAt = now.Add(window)
	}
	consumed += points

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_counters (key, consumed, reset_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET consumed = excluded.consumed, reset_at = excluded.reset_at`,
		key, consumed, resetAt.UnixMilli())
	if err != nil {
		return Counter{}, fmt.Errorf("save counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Counter{}, fmt.Errorf("commit counter: %w", err)
	}

	return Counter{Consumed: consumed, ResetIn: resetAt.Sub(now)}, nil
}

// Block implements CounterStore.
func (s *SQLiteStore) Block(ctx context.Context, key string, d time.Duration) error {
	until := s.now().Add(d).UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_counters (key, consumed, reset_at, blocked_until) VALUES (?, 0, 0, ?)
		ON CONFLICT (key) DO UPDATE SET blocked_until = MAX(blocked_until, excluded.blocked_until)`,
		key, until)
	if err != nil {
		return fmt.Errorf("save block: %w", err)
	}
	return nil
}

// BlockedFor implements CounterStore.
func (s *SQLiteStore) BlockedFor(ctx context.Context, key string) (time.Duration, error) {
	var untilMs int64
	err := s.db.QueryRowContext(ctx, `SELECT blocked_until FROM rate_counters WHERE key = ?`, key).Scan(&untilMs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load block: %w", err)
	}
	if remaining := time.UnixMilli(untilMs).Sub(s.now()); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// Cleanup removes rows whose window and block ended before olderThan.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := olderThan.UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_counters WHERE reset_at < ? AND blocked_until < ?`, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close checkpoints the WAL and closes the database. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
