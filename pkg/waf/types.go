package waf

import (
	"net/http"
	"strings"
	"time"
)

// Action is the outcome of a policy evaluation.
type Action string

const (
	ActionAllow       Action = "ALLOW"
	ActionBlock       Action = "BLOCK"
	ActionChallenge   Action = "CHALLENGE"
	ActionCount       Action = "COUNT"
	ActionRateLimited Action = "RATE_LIMITED"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionAllow, ActionBlock, ActionChallenge, ActionCount, ActionRateLimited:
		return true
	}
	return false
}

// Blocking reports whether a ends the pipeline with the request refused.
func (a Action) Blocking() bool {
	return a == ActionBlock || a == ActionChallenge || a == ActionRateLimited
}

// Stage names a pipeline stage.
type Stage string

const (
	StageReputation  Stage = "reputation"
	StageRateLimit   Stage = "rate_limit"
	StageAnomaly     Stage = "anomaly"
	StageStaticRules Stage = "static_rules"
	StageCustomRules Stage = "custom_rules"
	StageComplete    Stage = "complete"
)

// Request is the immutable view of an inbound request evaluated by the
// pipeline.
type Request struct {
	ID          string
	Method      string
	Path        string
	Query       map[string][]string
	Headers     map[string]string // lower-cased names
	Body        []byte
	ParsedBody  map[string]any // optional structured body
	SourceIP    string
	UserAgent   string
	BypassToken string
	ReceivedAt  time.Time
}

// Header returns the header value for name, case-insensitively.
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	return r.Headers[strings.ToLower(name)]
}

// QueryValue returns the first value of the query parameter name.
func (r *Request) QueryValue(name string) string {
	if vs := r.Query[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// NewRequestFromHTTP captures an *http.Request. body is the already-read
// request body.
func NewRequestFromHTTP(req *http.Request, sourceIP string, body []byte) *Request {
	headers := make(map[string]string, len(req.Header))
	for name, values := range req.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return &Request{
		Method:      req.Method,
		Path:        req.URL.Path,
		Query:       req.URL.Query(),
		Headers:     headers,
		Body:        body,
		SourceIP:    sourceIP,
		UserAgent:   req.UserAgent(),
		BypassToken: headers["x-bypass-token"],
		ReceivedAt:  time.Now(),
	}
}

// Decision is the terminal result of a pipeline run.
type Decision struct {
	Action   Action        `json:"action"`
	Stage    Stage         `json:"stage"`
	Reason   string        `json:"reason"`
	RuleID   string        `json:"rule_id,omitempty"`
	Score    *float64      `json:"score,omitempty"`
	Counted  []string      `json:"counted_rules,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Blocked reports whether the decision refuses the request.
func (d *Decision) Blocked() bool {
	return d.Action.Blocking()
}
