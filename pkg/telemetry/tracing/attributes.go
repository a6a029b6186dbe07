package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrRequestID = "bastion.request_id"
	AttrSourceIP  = "bastion.source_ip"
	AttrMethod    = "bastion.request.method"
	AttrPath      = "bastion.request.path"
	AttrStage     = "bastion.stage"
	AttrAction    = "bastion.decision.action"
	AttrRuleID    = "bastion.decision.rule_id"
	AttrScore     = "bastion.reputation.score"
)

// SetRequestAttributes describes the evaluated request on span.
func SetRequestAttributes(span trace.Span, requestID, method, path, sourceIP string) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrMethod, method),
		attribute.String(AttrPath, path),
		attribute.String(AttrSourceIP, sourceIP),
	)
}

// SetDecisionAttributes describes a terminal decision on span.
func SetDecisionAttributes(span trace.Span, action, stage, ruleID string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAction, action),
		attribute.String(AttrStage, stage),
	}
	if ruleID != "" {
		attrs = append(attrs, attribute.String(AttrRuleID, ruleID))
	}
	span.SetAttributes(attrs...)
}
