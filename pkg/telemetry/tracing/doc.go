// Package tracing provides OpenTelemetry tracing for request evaluation.
//
// A Tracer exports spans over OTLP gRPC. When tracing is disabled the
// Tracer is backed by a noop provider, so callers never check for nil.
//
// Trace context crosses process boundaries as W3C traceparent and
// tracestate headers: HTTPMiddleware extracts it from inbound evaluation
// requests and Inject adds it to calls made to the key, reputation and
// anomaly services.
//
// # Sampling
//
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample SampleRatio of new traces
//
// Every sampler is parent based, so a sampled caller keeps its trace.
package tracing
