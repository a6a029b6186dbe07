package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/audit/query"
	"bastion-hq/aegis/pkg/telemetry/logging"
	"bastion-hq/aegis/pkg/telemetry/metrics"
)

// Deps are the collaborators of a Recorder.
type Deps struct {
	// Sink receives flushed batches and serves queries. Required.
	Sink audit.Sink

	// Sealer encrypts and decrypts event sub-objects. Required.
	Sealer *Sealer

	// Escalator receives HIGH and CRITICAL events as they are recorded.
	// Defaults to a MetricEscalator over Metrics.
	Escalator audit.Escalator

	// Metrics receives flush outcome records. Defaults to metrics.Nop.
	Metrics metrics.Sink

	Logger *slog.Logger
}

// Recorder buffers, seals and flushes audit events.
type Recorder struct {
	sink      audit.Sink
	sealer    *Sealer
	escalator audit.Escalator
	metrics   metrics.Sink
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	// mu guards pending, reserved and closed. flushMu serializes flushes
	// and is always acquired before mu.
	mu       sync.Mutex
	pending  []*audit.Event
	reserved int
	closed   bool
	flushMu  sync.Mutex

	// admitting counts events holding a reserved slot; Close waits for
	// them before the final flush.
	admitting sync.WaitGroup

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Recorder and starts its periodic flush.
func New(cfg Config, deps Deps) (*Recorder, error) {
	if deps.Sink == nil {
		return nil, errors.New("audit sink is required")
	}
	if deps.Sealer == nil {
		return nil, errors.New("sealer is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Escalator == nil {
		deps.Escalator = NewMetricEscalator(deps.Metrics)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := &Recorder{
		sink:      deps.Sink,
		sealer:    deps.Sealer,
		escalator: deps.Escalator,
		metrics:   deps.Metrics,
		config:    cfg,
		logger:    deps.Logger.With("component", "audit.recorder"),
		now:       time.Now,
		done:      make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("audit recorder initialized",
		"batch_size", cfg.BatchSize,
		"flush_interval", cfg.FlushInterval,
		"max_pending", cfg.MaxPending,
		"retention_days", cfg.RetentionDays,
	)

	return r, nil
}

// Record validates, enriches and seals e, escalates it when its risk level
// requires, and appends it to the buffer. e itself is not modified.
//
// A flush triggered by this call that fails is logged; the event stays
// buffered and Record still succeeds.
func (r *Recorder) Record(ctx context.Context, e *audit.Event) error {
	if err := ValidateEvent(e); err != nil {
		return err
	}

	ev := e.Clone()
	r.enrich(ctx, ev)
	if err := r.sealer.SealEvent(ctx, ev); err != nil {
		return err
	}

	// The slot is reserved before escalating so an alert is never raised
	// for an event the buffer then rejects.
	if err := r.reserve(ev); err != nil {
		return err
	}
	if ev.RiskLevel.Escalates() {
		r.escalate(ctx, ev)
	}

	r.mu.Lock()
	r.reserved--
	r.pending = append(r.pending, ev)
	full := len(r.pending) >= r.config.BatchSize
	r.mu.Unlock()
	r.admitting.Done()

	if full {
		if err := r.flush(ctx, r.config.BatchSize); err != nil {
			r.logger.Warn("size-triggered flush failed, events retained",
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (r *Recorder) reserve(ev *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return audit.ErrClosed
	}
	if len(r.pending)+r.reserved >= r.config.MaxPending {
		r.logger.Error("audit buffer full, event rejected",
			"event_id", ev.ID,
			"pending", r.config.MaxPending,
		)
		return audit.ErrBufferFull
	}
	r.reserved++
	r.admitting.Add(1)
	return nil
}

// ValidateEvent checks the fields every audit event must carry.
func ValidateEvent(e *audit.Event) error {
	switch {
	case e == nil:
		return audit.NewValidationError("event", "event is required")
	case e.ID == "":
		return audit.NewValidationError("id", "id is required")
	case e.Type == "":
		return audit.NewValidationError("type", "type is required")
	case !e.Type.IsValid():
		return audit.NewValidationError("type", fmt.Sprintf("unknown event type %q", e.Type))
	case e.Actor == "":
		return audit.NewValidationError("actor", "actor is required")
	case e.Action == "":
		return audit.NewValidationError("action", "action is required")
	case !e.RiskLevel.IsValid():
		return audit.NewValidationError("risk_level", fmt.Sprintf("unknown risk level %q", e.RiskLevel))
	}
	return nil
}

func (r *Recorder) enrich(ctx context.Context, e *audit.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	md := &e.Metadata
	if md.CorrelationID == "" {
		md.CorrelationID = logging.CorrelationID(ctx)
	}
	if md.CorrelationID == "" {
		md.CorrelationID = uuid.NewString()
	}
	if md.RequestID == "" {
		md.RequestID = logging.RequestID(ctx)
	}
	if md.Environment == "" {
		md.Environment = r.config.Environment
	}
	if md.Version == "" {
		md.Version = r.config.Version
	}
}

// escalate runs outside every lock and never fails the Record call.
func (r *Recorder) escalate(ctx context.Context, e *audit.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.EscalationTimeout)
	defer cancel()

	if err := r.escalator.Escalate(ctx, e); err != nil {
		r.logger.Error("audit escalation failed",
			"event_id", e.ID,
			"risk_level", e.RiskLevel,
			"error", err,
		)
		return
	}
	r.logger.Warn("audit event escalated",
		"event_id", e.ID,
		"event_type", e.Type,
		"risk_level", e.RiskLevel,
	)
}

// Flush writes every buffered event to the sink in batches of at most
// BatchSize. It stops at the first failed write and leaves the unwritten
// events buffered.
func (r *Recorder) Flush(ctx context.Context) error {
	return r.flush(ctx, 1)
}

// flush writes batches while at least threshold events are pending. Holding
// flushMu for the whole loop keeps concurrent triggers from writing the
// same events twice.
func (r *Recorder) flush(ctx context.Context, threshold int) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	for {
		r.mu.Lock()
		if len(r.pending) < threshold || len(r.pending) == 0 {
			r.mu.Unlock()
			return nil
		}
		n := len(r.pending)
		if n > r.config.BatchSize {
			n = r.config.BatchSize
		}
		batch := slices.Clone(r.pending[:n])
		r.mu.Unlock()

		if err := r.write(ctx, batch); err != nil {
			return err
		}

		// Only flushers remove events and flushMu is held, so the batch is
		// still the head of the buffer.
		r.mu.Lock()
		r.pending = slices.Delete(r.pending, 0, n)
		r.mu.Unlock()
	}
}

func (r *Recorder) write(ctx context.Context, batch []*audit.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
	defer cancel()

	start := r.now()
	err := r.sink.Write(ctx, batch, audit.WriteOptions{RetentionDays: r.config.RetentionDays})
	duration := r.now().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if merr := r.metrics.PutMetric(ctx, metrics.Record{
		Name:       metrics.NameAuditFlush,
		Value:      float64(len(batch)),
		Unit:       metrics.UnitCount,
		Dimensions: map[string]string{"outcome": outcome},
		Timestamp:  r.now(),
	}); merr != nil {
		r.logger.Debug("failed to publish flush metric", "error", merr)
	}

	if err != nil {
		r.logger.Error("audit flush failed",
			"batch_size", len(batch),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return err
	}

	r.logger.Debug("audit batch flushed",
		"batch_size", len(batch),
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit flush",
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
	return nil
}

// flushLoop is the timer-driven flush. It is the only time-based trigger.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Warn("periodic flush failed, events retained",
					"pending", r.Pending(),
					"error", err,
				)
			}
		case <-r.done:
			return
		}
	}
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Query validates q, reads matching events from the sink, decrypts their
// sealed sub-objects and applies cf. Pagination is applied by the sink
// before the compliance filter.
func (r *Recorder) Query(ctx context.Context, q *audit.Query, cf audit.ComplianceFilter) ([]*audit.Event, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	bq := *q
	query.ApplyDefaults(&bq)

	events, err := r.sink.Query(ctx, &bq)
	if err != nil {
		return nil, err
	}
	if err := r.sealer.OpenEvents(ctx, events, r.config.DecryptConcurrency); err != nil {
		return nil, err
	}

	out := audit.FilterCompliance(events, cf)
	r.logger.Debug("audit query completed",
		"matched", len(events),
		"returned", len(out),
	)
	return out, nil
}

// Close stops the periodic flush and flushes what is buffered. Events that
// cannot be written are reported in the returned error and dropped.
func (r *Recorder) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down audit recorder")

		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.admitting.Wait()

		close(r.done)
		r.wg.Wait()

		if err = r.Flush(ctx); err != nil {
			err = fmt.Errorf("final audit flush failed with %d events pending: %w", r.Pending(), err)
			r.logger.Error("audit recorder shut down with unflushed events", "error", err)
			return
		}
		r.logger.Info("audit recorder shut down complete")
	})
	return err
}
