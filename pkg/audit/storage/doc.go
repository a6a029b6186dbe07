// Package storage provides audit sinks.
//
//   - MemoryStorage: in-process sink for tests and one-shot CLI runs
//   - SQLiteStorage: durable single-node sink (mattn/go-sqlite3, WAL mode)
//   - KafkaWriter: write-only mirror that publishes sealed events to a topic
//     and escalations to an alert topic
//   - Tee: a queryable primary sink plus write-only mirrors
//
// Sinks receive sealed events only. Writes are idempotent on event id, so a
// batch retried after a partial failure does not duplicate rows. Retention
// is applied sink-side: each event's expiry is derived from the
// WriteOptions of the batch that carried it, expired events are hidden from
// queries, and DeleteExpired removes them.
package storage

import (
	"time"

	"bastion-hq/aegis/pkg/audit"
)

// expiresAt returns the expiry of an event written with opts, or the zero
// time when it never expires.
func expiresAt(e *audit.Event, opts audit.WriteOptions) time.Time {
	if opts.RetentionDays <= 0 {
		return time.Time{}
	}
	return e.Timestamp.AddDate(0, 0, opts.RetentionDays)
}
