package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// overflowLabel replaces label values once the cardinality limit is hit.
const overflowLabel = "other"

// Config configures the Prometheus collector.
type Config struct {
	// Namespace prefixes every metric name. Defaults to "bastion".
	Namespace string

	// Subsystem is the second name segment. Optional.
	Subsystem string

	// DurationBuckets are histogram buckets for decision latency in seconds.
	DurationBuckets []float64

	// MaxRuleCardinality caps the distinct rule_id label values.
	MaxRuleCardinality int
}

// Collector is a Sink that maintains Prometheus series.
type Collector struct {
	registry *prometheus.Registry
	security *SecurityMetrics
	audit    *AuditMetrics
	records  *prometheus.CounterVec

	rules *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics. A nil
// registry creates a private one.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "bastion"
	}
	if len(cfg.DurationBuckets) == 0 {
		// Pipeline decisions span in-memory rule checks to remote calls.
		cfg.DurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2}
	}
	if cfg.MaxRuleCardinality <= 0 {
		cfg.MaxRuleCardinality = 1000
	}

	c := &Collector{
		registry: registry,
		security: NewSecurityMetrics(cfg, registry),
		audit:    NewAuditMetrics(cfg, registry),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "records_total",
				Help:      "Metric records without a dedicated series, by name",
			},
			[]string{"name"},
		),
		rules: NewCardinalityLimiter(cfg.MaxRuleCardinality),
	}
	registry.MustRegister(c.records)
	return c
}

// PutMetric implements Sink.
func (c *Collector) PutMetric(_ context.Context, r Record) error {
	switch r.Name {
	case NameDecision:
		ruleID := r.Dimension("rule_id")
		if ruleID != "" && !c.rules.Allow(ruleID) {
			ruleID = overflowLabel
		}
		c.security.RecordDecision(r.Dimension("action"), r.Dimension("stage"), ruleID, r.Value)
	case NameAuditEscalation:
		c.audit.RecordEscalation(r.Dimension("risk_level"), r.Dimension("event_type"))
	case NameAuditFlush:
		c.audit.RecordFlush(r.Dimension("outcome"), r.Value)
	default:
		if r.Value >= 0 {
			c.records.WithLabelValues(r.Name).Add(r.Value)
		}
	}
	return nil
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or can still be added.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
