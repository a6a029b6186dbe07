// Package metrics turns metric records into Prometheus series.
//
// Components emit abstract Record values through a Sink. Collector is the
// Prometheus-backed sink used in production and MemorySink captures records
// for tests and for the CLI's one-shot commands.
//
// Record names understood by Collector:
//
//   - waf.decision: one per terminal pipeline decision. Value is the
//     evaluation time in seconds; dimensions are action, stage and rule_id.
//   - audit.escalation: one per HIGH or CRITICAL audit event; dimensions
//     are risk_level and event_type.
//   - audit.flush: one per buffer flush. Value is the batch size; the
//     outcome dimension is "success" or "failure".
//
// Any other name is counted in records_total by name.
//
// Example:
//
//	collector := metrics.NewCollector(metrics.Config{Namespace: "bastion"}, nil)
//	http.Handle("/metrics", collector.Handler())
package metrics
