// Package health serves liveness and readiness probes for the enforcement
// service.
//
// Liveness only reports that the process answers. Readiness runs every
// registered check concurrently, each bounded by the checker timeout, and
// reports "degraded" with HTTP 503 when any of them fails:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("key_service", health.KeyServiceCheck(keyring, "audit-master-key"))
//	checker.RegisterCheck("audit_buffer", health.AuditBufferCheck(rec.Pending, cfg.Audit.MaxPending))
//	mux.HandleFunc("GET /health", checker.LivenessHandler())
//	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
//
// Checks are plain functions, so components do not import this package.
package health
