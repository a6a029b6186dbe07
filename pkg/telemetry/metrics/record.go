package metrics

import (
	"context"
	"time"
)

// Record names.
const (
	NameDecision        = "waf.decision"
	NameAuditEscalation = "audit.escalation"
	NameAuditFlush      = "audit.flush"
)

// Units.
const (
	UnitCount   = "Count"
	UnitSeconds = "Seconds"
)

// Record is a single metric observation.
type Record struct {
	Name       string
	Value      float64
	Unit       string
	Dimensions map[string]string
	Timestamp  time.Time
}

// Dimension returns the named dimension, or "".
func (r Record) Dimension(name string) string {
	return r.Dimensions[name]
}

// Sink receives metric records.
type Sink interface {
	PutMetric(ctx context.Context, record Record) error
}

// Nop is a sink that discards records.
type Nop struct{}

// PutMetric implements Sink.
func (Nop) PutMetric(context.Context, Record) error { return nil }
