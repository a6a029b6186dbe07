package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bastion-hq/aegis/pkg/audit"
)

// Tee writes to a primary sink and mirrors each batch to secondary writers.
// Only the primary is queried. A mirror failure fails the write so the
// batch stays buffered; the primary ignores the duplicate ids on retry.
type Tee struct {
	primary audit.Sink
	mirrors []audit.Writer
	logger  *slog.Logger
}

// NewTee creates a tee over primary and mirrors.
func NewTee(primary audit.Sink, logger *slog.Logger, mirrors ...audit.Writer) *Tee {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tee{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With("component", "audit.storage.tee"),
	}
}

// Write implements audit.Writer.
func (t *Tee) Write(ctx context.Context, events []*audit.Event, opts audit.WriteOptions) error {
	if err := t.primary.Write(ctx, events, opts); err != nil {
		return err
	}
	var errs []error
	for _, m := range t.mirrors {
		if err := m.Write(ctx, events, opts); err != nil {
			t.logger.Warn("audit mirror write failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query implements audit.Sink.
func (t *Tee) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	return t.primary.Query(ctx, q)
}

// DeleteExpired forwards to the primary when it supports pruning.
func (t *Tee) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if p, ok := t.primary.(audit.Pruner); ok {
		return p.DeleteExpired(ctx, now)
	}
	return 0, nil
}

// Close closes the primary and every mirror.
func (t *Tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, m := range t.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
