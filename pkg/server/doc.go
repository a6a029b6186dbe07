// Package server exposes the policy pipeline over HTTP.
//
// Routes:
//
//	POST /v1/evaluate   evaluate a request description, answer with the decision
//	GET  /metrics       Prometheus exposition
//	GET  /health        liveness
//	GET  /ready         readiness
//	GET  /version       build information
//
// Every request passes through recovery, request id and access log
// middleware. The request id is stored with logging.WithRequestID so log
// records and audit events of one evaluation share it.
package server
