// Package telemetry groups the observability of Bastion.
//
//   - logging: slog construction with secret redaction
//   - metrics: the metric sink used by the pipeline and audit recorder, with
//     Prometheus and in-memory implementations
//   - tracing: OpenTelemetry spans and W3C trace propagation
//   - health: liveness, readiness and version endpoints
package telemetry
