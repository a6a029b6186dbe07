package retention

import (
	"context"
	"log/slog"
	"time"

	"bastion-hq/aegis/pkg/audit"
)

// Config contains configuration for the pruner.
type Config struct {
	// Schedule is a standard cron expression. Empty disables scheduling.
	// Example: "0 3 * * *" (daily at 3 AM)
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{Schedule: "0 3 * * *"}
}

// Pruner deletes expired events from a sink.
type Pruner struct {
	sink      audit.Pruner
	config    Config
	logger    *slog.Logger
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a pruner for sink.
func NewPruner(sink audit.Pruner, config Config, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		sink:   sink,
		config: config,
		logger: logger.With("component", "audit.retention"),
		now:    time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes every event whose retention has ended and returns the
// number removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	now := p.now()
	deleted, err := p.sink.DeleteExpired(ctx, now)
	if err != nil {
		return 0, &audit.RetentionError{Cause: err}
	}

	if deleted > 0 {
		p.logger.Info("expired audit events pruned", "deleted_count", deleted, "cutoff", now)
	} else {
		p.logger.Debug("no expired audit events")
	}
	return deleted, nil
}

// Start starts the pruning schedule.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the schedule and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled prune, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
