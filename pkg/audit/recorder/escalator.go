package recorder

import (
	"context"
	"errors"
	"time"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/telemetry/metrics"
)

// MetricEscalator raises an audit.escalation metric for each escalated
// event.
type MetricEscalator struct {
	sink metrics.Sink
	now  func() time.Time
}

// NewMetricEscalator creates an escalator publishing to sink.
func NewMetricEscalator(sink metrics.Sink) *MetricEscalator {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &MetricEscalator{sink: sink, now: time.Now}
}

// Escalate implements audit.Escalator.
func (m *MetricEscalator) Escalate(ctx context.Context, e *audit.Event) error {
	return m.sink.PutMetric(ctx, metrics.Record{
		Name:  metrics.NameAuditEscalation,
		Value: 1,
		Unit:  metrics.UnitCount,
		Dimensions: map[string]string{
			"risk_level": string(e.RiskLevel),
			"event_type": string(e.Type),
		},
		Timestamp: m.now(),
	})
}

// Escalators fans an escalation out to every member. All members are
// called; their errors are joined.
type Escalators []audit.Escalator

// Escalate implements audit.Escalator.
func (es Escalators) Escalate(ctx context.Context, e *audit.Event) error {
	var errs []error
	for _, esc := range es {
		if esc == nil {
			continue
		}
		if err := esc.Escalate(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
