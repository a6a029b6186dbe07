// Package waf defines the request context and decision types shared by the
// enforcement stages (reputation, rate limiting, anomaly detection, rules)
// and the pipeline that sequences them.
package waf
