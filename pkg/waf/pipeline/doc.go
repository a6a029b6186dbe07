// Package pipeline sequences the request-time security checks.
//
// A run visits the stages in a fixed order and stops at the first one that
// refuses the request:
//
//	reputation -> rate_limit -> anomaly -> static_rules -> custom_rules -> ALLOW
//
// The reputation and anomaly stages fail open: their dependencies already
// turn outages into a passing score. Every other fault, including a counter
// store outage, blocks the request with reason "internal error" and is
// returned to the caller as a *waf.InternalError.
//
// Each terminal decision produces exactly one audit event (SECURITY_ALERT
// when the request is refused, RESOURCE_ACCESS when it is allowed) and one
// waf.decision metric record. A run whose context is cancelled before a
// decision is reached produces neither.
package pipeline
