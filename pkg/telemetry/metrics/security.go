package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SecurityMetrics tracks pipeline decisions.
//
// Metrics:
//   - bastion_decisions_total: terminal decisions by action and stage
//   - bastion_decision_duration_seconds: evaluation time by stage
//   - bastion_rule_matches_total: blocking rule matches by rule and action
type SecurityMetrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	ruleMatches      *prometheus.CounterVec
}

// NewSecurityMetrics creates and registers decision metrics.
func NewSecurityMetrics(cfg Config, registry *prometheus.Registry) *SecurityMetrics {
	sm := &SecurityMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of terminal pipeline decisions",
			},
			[]string{"action", "stage"},
		),
		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Time from pipeline entry to terminal decision",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"stage"},
		),
		ruleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_matches_total",
				Help:      "Terminal rule matches by rule id",
			},
			[]string{"rule_id", "action"},
		),
	}

	registry.MustRegister(sm.decisionsTotal, sm.decisionDuration, sm.ruleMatches)
	return sm
}

// RecordDecision records one terminal decision.
func (sm *SecurityMetrics) RecordDecision(action, stage, ruleID string, seconds float64) {
	sm.decisionsTotal.WithLabelValues(action, stage).Inc()
	if seconds >= 0 {
		sm.decisionDuration.WithLabelValues(stage).Observe(seconds)
	}
	if ruleID != "" {
		sm.ruleMatches.WithLabelValues(ruleID, action).Inc()
	}
}

// AuditMetrics tracks the audit pipeline.
//
// Metrics:
//   - bastion_audit_escalations_total: HIGH/CRITICAL events by risk and type
//   - bastion_audit_flushes_total: flush attempts by outcome
//   - bastion_audit_flushed_events_total: events in flush attempts by outcome
type AuditMetrics struct {
	escalations   *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	flushedEvents *prometheus.CounterVec
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(cfg Config, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_escalations_total",
				Help:      "High-risk audit events escalated at record time",
			},
			[]string{"risk_level", "event_type"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_flushes_total",
				Help:      "Audit buffer flush attempts",
			},
			[]string{"outcome"},
		),
		flushedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_flushed_events_total",
				Help:      "Audit events included in flush attempts",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(am.escalations, am.flushes, am.flushedEvents)
	return am
}

// RecordEscalation counts one escalated event.
func (am *AuditMetrics) RecordEscalation(risk, eventType string) {
	am.escalations.WithLabelValues(risk, eventType).Inc()
}

// RecordFlush counts one flush attempt of size events.
func (am *AuditMetrics) RecordFlush(outcome string, size float64) {
	am.flushes.WithLabelValues(outcome).Inc()
	if size > 0 {
		am.flushedEvents.WithLabelValues(outcome).Add(size)
	}
}
