package pipeline

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/limits/ratelimit"
	"bastion-hq/aegis/pkg/policy/engine"
	"bastion-hq/aegis/pkg/telemetry/metrics"
	"bastion-hq/aegis/pkg/telemetry/tracing"
	"bastion-hq/aegis/pkg/waf"
	"bastion-hq/aegis/pkg/waf/anomaly"
)

// ReasonInternalError is the decision reason for pipeline faults.
const ReasonInternalError = "internal error"

// Reputation scores source addresses.
type Reputation interface {
	Score(ctx context.Context, ip string) float64
	Allowed(score float64) bool
}

// RateLimiter consumes request budget per identity.
type RateLimiter interface {
	Consume(ctx context.Context, identity string) (*ratelimit.CheckResult, error)
}

// AnomalyDetector classifies request features.
type AnomalyDetector interface {
	IsThreat(ctx context.Context, features anomaly.Features) bool
}

// Rules evaluates static and custom rules.
type Rules interface {
	EvaluateStatic(ctx context.Context, req *waf.Request) (*engine.Result, error)
	EvaluateCustom(ctx context.Context, req *waf.Request) (*engine.Result, error)
}

// Recorder receives the audit event of each decision.
type Recorder interface {
	Record(ctx context.Context, e *audit.Event) error
}

// Config configures a Pipeline.
type Config struct {
	// BypassTokens skip the rate limit stage when presented.
	BypassTokens []string

	// IdentityHeader names the header whose value identifies the caller for
	// rate limiting. The source IP is used when it is empty or absent.
	IdentityHeader string

	// ComplianceFlags are attached to every decision audit event.
	ComplianceFlags []string
}

// Deps are the stages and sinks of a Pipeline. A nil stage is skipped.
type Deps struct {
	Reputation Reputation
	Limiter    RateLimiter
	Detector   AnomalyDetector
	Rules      Rules

	// Recorder is required.
	Recorder Recorder

	// Metrics defaults to metrics.Nop.
	Metrics metrics.Sink

	// Tracer defaults to tracing.Noop.
	Tracer *tracing.Tracer

	Logger *slog.Logger
}

// Pipeline evaluates requests through the ordered stages.
type Pipeline struct {
	reputation Reputation
	limiter    RateLimiter
	detector   AnomalyDetector
	rules      Rules
	recorder   Recorder
	metrics    metrics.Sink
	tracer     *tracing.Tracer

	bypassTokens    [][]byte
	identityHeader  string
	complianceFlags []string

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	p := &Pipeline{
		reputation:      deps.Reputation,
		limiter:         deps.Limiter,
		detector:        deps.Detector,
		rules:           deps.Rules,
		recorder:        deps.Recorder,
		metrics:         deps.Metrics,
		tracer:          deps.Tracer,
		identityHeader:  cfg.IdentityHeader,
		complianceFlags: append([]string(nil), cfg.ComplianceFlags...),
		logger:          deps.Logger.With("component", "waf.pipeline"),
		now:             time.Now,
	}
	for _, t := range cfg.BypassTokens {
		if t != "" {
			p.bypassTokens = append(p.bypassTokens, []byte(t))
		}
	}

	p.logger.Info("policy pipeline initialized",
		"reputation", p.reputation != nil,
		"rate_limit", p.limiter != nil,
		"anomaly", p.detector != nil,
		"rules", p.rules != nil,
		"bypass_tokens", len(p.bypassTokens),
	)
	return p, nil
}

// Evaluate runs req through the stages and returns the terminal decision.
//
// On a stage fault the decision is BLOCK with reason "internal error" and the
// returned error is a *waf.InternalError. When ctx ends before a decision is
// reached, Evaluate returns a nil decision and the context error.
func (p *Pipeline) Evaluate(ctx context.Context, req *waf.Request) (*waf.Decision, error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "waf.evaluate")
	defer span.End()
	tracing.SetRequestAttributes(span, req.ID, req.Method, req.Path, req.SourceIP)

	d, stage, err := p.run(ctx, req)
	if cerr := ctx.Err(); cerr != nil {
		p.logger.Debug("evaluation cancelled", "stage", stage, "request_id", req.ID)
		tracing.SetStatus(span, cerr)
		return nil, cerr
	}
	if err != nil {
		p.logger.Error("stage failed, blocking request",
			"stage", stage,
			"request_id", req.ID,
			"path", req.Path,
			"ip", req.SourceIP,
			"error", err,
		)
		d = &waf.Decision{Action: waf.ActionBlock, Stage: stage, Reason: ReasonInternalError, Score: d.Score}
		var ierr *waf.InternalError
		if !errors.As(err, &ierr) {
			err = waf.NewInternalError(stage, err)
		}
	}
	d.Duration = p.now().Sub(start)
	tracing.SetDecisionAttributes(span, string(d.Action), string(d.Stage), d.RuleID)
	tracing.SetStatus(span, err)

	p.emit(ctx, req, d, err != nil)
	return d, err
}

// run walks the stages. The returned decision is never nil; on error it
// carries whatever was learned before the fault.
func (p *Pipeline) run(ctx context.Context, req *waf.Request) (*waf.Decision, waf.Stage, error) {
	d := &waf.Decision{Action: waf.ActionAllow}

	if p.reputation != nil {
		sctx, span := p.tracer.Start(ctx, "waf.stage.reputation")
		score := p.reputation.Score(sctx, req.SourceIP)
		span.SetAttributes(attribute.Float64(tracing.AttrScore, score))
		span.End()
		if err := ctx.Err(); err != nil {
			return d, waf.StageReputation, err
		}
		d.Score = &score
		if !p.reputation.Allowed(score) {
			return refuse(d, waf.ActionBlock, waf.StageReputation,
				fmt.Sprintf("ip reputation score %.2f below threshold", score)), waf.StageReputation, nil
		}
	}

	if p.limiter != nil {
		if p.bypassed(req.BypassToken) {
			p.logger.Debug("rate limit bypassed", "request_id", req.ID)
		} else if err := p.consume(ctx, req); err != nil {
			var rlErr *ratelimit.RateLimitedError
			if errors.As(err, &rlErr) {
				return refuse(d, waf.ActionRateLimited, waf.StageRateLimit, rlErr.Error()), waf.StageRateLimit, nil
			}
			return d, waf.StageRateLimit, err
		}
	}

	if p.detector != nil {
		sctx, span := p.tracer.Start(ctx, "waf.stage.anomaly")
		threat := p.detector.IsThreat(sctx, anomaly.FeaturesFromRequest(req))
		span.SetAttributes(attribute.Bool("bastion.anomaly.threat", threat))
		span.End()
		if err := ctx.Err(); err != nil {
			return d, waf.StageAnomaly, err
		}
		if threat {
			return refuse(d, waf.ActionBlock, waf.StageAnomaly, "anomalous request"), waf.StageAnomaly, nil
		}
	}

	if p.rules != nil {
		res, err := p.rules.EvaluateStatic(ctx, req)
		if err != nil {
			return d, waf.StageStaticRules, err
		}
		d.Counted = append(d.Counted, res.Counted...)
		if res.Terminal() {
			return fromResult(d, res, waf.StageStaticRules), waf.StageStaticRules, nil
		}

		res, err = p.rules.EvaluateCustom(ctx, req)
		if err != nil {
			return d, waf.StageCustomRules, err
		}
		d.Counted = append(d.Counted, res.Counted...)
		if res.Terminal() {
			return fromResult(d, res, waf.StageCustomRules), waf.StageCustomRules, nil
		}
	}

	d.Stage = waf.StageComplete
	d.Reason = "all checks passed"
	return d, waf.StageComplete, nil
}

func (p *Pipeline) consume(ctx context.Context, req *waf.Request) error {
	ctx, span := p.tracer.Start(ctx, "waf.stage.rate_limit")
	defer span.End()
	_, err := p.limiter.Consume(ctx, p.identity(req))
	var rlErr *ratelimit.RateLimitedError
	if err != nil && !errors.As(err, &rlErr) {
		tracing.SetStatus(span, err)
	}
	return err
}

func refuse(d *waf.Decision, action waf.Action, stage waf.Stage, reason string) *waf.Decision {
	d.Action = action
	d.Stage = stage
	d.Reason = reason
	return d
}

func fromResult(d *waf.Decision, res *engine.Result, stage waf.Stage) *waf.Decision {
	d.RuleID = res.RuleID
	return refuse(d, res.Action, stage, res.Reason)
}

// bypassed compares token against every configured token in constant time.
func (p *Pipeline) bypassed(token string) bool {
	if token == "" {
		return false
	}
	match := 0
	for _, t := range p.bypassTokens {
		match |= subtle.ConstantTimeCompare([]byte(token), t)
	}
	return match == 1
}

func (p *Pipeline) identity(req *waf.Request) string {
	if p.identityHeader != "" {
		if v := req.Header(p.identityHeader); v != "" {
			return v
		}
	}
	return req.SourceIP
}

// emit records the audit event and metric of a terminal decision. Neither
// failure changes the decision.
func (p *Pipeline) emit(ctx context.Context, req *waf.Request, d *waf.Decision, internal bool) {
	ctx = context.WithoutCancel(ctx)

	if err := p.recorder.Record(ctx, p.auditEvent(req, d, internal)); err != nil {
		p.logger.Error("failed to record decision audit event",
			"request_id", req.ID,
			"action", d.Action,
			"error", err,
		)
	}

	rec := metrics.Record{
		Name:  metrics.NameDecision,
		Value: d.Duration.Seconds(),
		Unit:  metrics.UnitSeconds,
		Dimensions: map[string]string{
			"action": string(d.Action),
			"stage":  string(d.Stage),
		},
		Timestamp: p.now(),
	}
	if d.RuleID != "" {
		rec.Dimensions["rule_id"] = d.RuleID
	}
	if err := p.metrics.PutMetric(ctx, rec); err != nil {
		p.logger.Warn("failed to publish decision metric", "error", err)
	}
}

func (p *Pipeline) auditEvent(req *waf.Request, d *waf.Decision, internal bool) *audit.Event {
	eventType := audit.EventResourceAccess
	if d.Blocked() {
		eventType = audit.EventSecurityAlert
	}

	details := map[string]any{
		"method":      req.Method,
		"path":        req.Path,
		"stage":       string(d.Stage),
		"reason":      d.Reason,
		"duration_ms": d.Duration.Milliseconds(),
	}
	if d.RuleID != "" {
		details["rule_id"] = d.RuleID
	}
	if len(d.Counted) > 0 {
		details["counted_rules"] = d.Counted
	}
	if d.Score != nil {
		details["reputation_score"] = *d.Score
	}

	return &audit.Event{
		ID:              uuid.NewString(),
		Timestamp:       p.now().UTC(),
		Type:            eventType,
		Actor:           p.identity(req),
		Action:          "request.evaluate",
		Resource:        req.Method + " " + req.Path,
		Status:          string(d.Action),
		IPAddress:       req.SourceIP,
		UserAgent:       req.UserAgent,
		RiskLevel:       riskLevel(d, internal),
		ComplianceFlags: append([]string(nil), p.complianceFlags...),
		Metadata:        audit.Metadata{RequestID: req.ID},
		Details:         details,
	}
}

// riskLevel grades a decision. Anomaly blocks are CRITICAL, other blocks and
// internal errors HIGH, soft refusals MEDIUM.
func riskLevel(d *waf.Decision, internal bool) audit.RiskLevel {
	switch {
	case internal:
		return audit.RiskHigh
	case d.Action == waf.ActionBlock && d.Stage == waf.StageAnomaly:
		return audit.RiskCritical
	case d.Action == waf.ActionBlock:
		return audit.RiskHigh
	case d.Action == waf.ActionRateLimited, d.Action == waf.ActionChallenge:
		return audit.RiskMedium
	default:
		return audit.RiskLow
	}
}
