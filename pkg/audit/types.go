package audit

import (
	"context"
	"maps"
	"slices"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventAuthSuccess     EventType = "AUTH_SUCCESS"
	EventAuthFailure     EventType = "AUTH_FAILURE"
	EventAccessDenied    EventType = "ACCESS_DENIED"
	EventResourceAccess  EventType = "RESOURCE_ACCESS"
	EventConfigChange    EventType = "CONFIG_CHANGE"
	EventDataExport      EventType = "DATA_EXPORT"
	EventSecurityAlert   EventType = "SECURITY_ALERT"
	EventComplianceCheck EventType = "COMPLIANCE_CHECK"
	EventRiskAssessment  EventType = "RISK_ASSESSMENT"
	EventPolicyViolation EventType = "POLICY_VIOLATION"
	EventDataBreach      EventType = "DATA_BREACH"
	EventSystemChange    EventType = "SYSTEM_CHANGE"
)

var eventTypes = map[EventType]bool{
	EventAuthSuccess: true, EventAuthFailure: true, EventAccessDenied: true,
	EventResourceAccess: true, EventConfigChange: true, EventDataExport: true,
	EventSecurityAlert: true, EventComplianceCheck: true, EventRiskAssessment: true,
	EventPolicyViolation: true, EventDataBreach: true, EventSystemChange: true,
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	return eventTypes[t]
}

// RiskLevel grades an event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// IsValid reports whether r is a known level. The empty level is valid and
// treated as LOW.
func (r RiskLevel) IsValid() bool {
	switch r {
	case "", RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Escalates reports whether events at this level are escalated at record
// time.
func (r RiskLevel) Escalates() bool {
	return r == RiskHigh || r == RiskCritical
}

// Compliance standards used in ComplianceFlags.
const (
	StandardSOX    = "SOX"
	StandardPCIDSS = "PCI_DSS"
	StandardGDPR   = "GDPR"
	StandardHIPAA  = "HIPAA"
	StandardSOC2   = "SOC2"
)

// ComplianceControl ties an event to a specific control of a standard.
type ComplianceControl struct {
	Standard    string `json:"standard"`
	Control     string `json:"control"`
	Requirement string `json:"requirement,omitempty"`
}

// Metadata carries correlation data.
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	Environment   string `json:"environment,omitempty"`
	Version       string `json:"version,omitempty"`
}

// SecurityContext is a snapshot of the actor's authorization state.
type SecurityContext struct {
	Permissions    []string `json:"permissions,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	AuthMethod     string   `json:"auth_method,omitempty"`
	MFAVerified    bool     `json:"mfa_verified"`
	IPRestrictions []string `json:"ip_restrictions,omitempty"`
}

// Event is a single audit record.
type Event struct {
	ID              string              `json:"id"`
	Timestamp       time.Time           `json:"timestamp"`
	Type            EventType           `json:"type"`
	Actor           string              `json:"actor"`
	Action          string              `json:"action"`
	Resource        string              `json:"resource,omitempty"`
	Status          string              `json:"status,omitempty"`
	IPAddress       string              `json:"ip_address,omitempty"`
	UserAgent       string              `json:"user_agent,omitempty"`
	RiskLevel       RiskLevel           `json:"risk_level,omitempty"`
	ComplianceFlags []string            `json:"compliance_flags,omitempty"`
	Compliance      []ComplianceControl `json:"compliance,omitempty"`
	Metadata        Metadata            `json:"metadata"`

	// Details and SecurityContext are plaintext only inside the process.
	Details         map[string]any   `json:"details,omitempty"`
	SecurityContext *SecurityContext `json:"security_context,omitempty"`

	// EncryptedDetails and EncryptedSecurityContext are envelopes that
	// replace the plaintext fields before buffering.
	EncryptedDetails         []byte `json:"encrypted_details,omitempty"`
	EncryptedSecurityContext []byte `json:"encrypted_security_context,omitempty"`
}

// Sealed reports whether the event carries no plaintext sub-objects.
func (e *Event) Sealed() bool {
	return e.Details == nil && e.SecurityContext == nil
}

// Clone returns a copy that shares no mutable state with e. Details values
// are copied one level deep.
func (e *Event) Clone() *Event {
	c := *e
	c.ComplianceFlags = slices.Clone(e.ComplianceFlags)
	c.Compliance = slices.Clone(e.Compliance)
	c.Details = maps.Clone(e.Details)
	if e.SecurityContext != nil {
		sc := *e.SecurityContext
		sc.Permissions = slices.Clone(sc.Permissions)
		sc.Roles = slices.Clone(sc.Roles)
		sc.IPRestrictions = slices.Clone(sc.IPRestrictions)
		c.SecurityContext = &sc
	}
	c.EncryptedDetails = slices.Clone(e.EncryptedDetails)
	c.EncryptedSecurityContext = slices.Clone(e.EncryptedSecurityContext)
	return &c
}

// TimeRange is an inclusive time interval.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Query selects events from a sink. TimeRange is required; every other
// filter is optional and list filters match any of their values.
type Query struct {
	TimeRange       TimeRange   `json:"time_range"`
	EventTypes      []EventType `json:"event_types,omitempty"`
	Actors          []string    `json:"actors,omitempty"`
	Resources       []string    `json:"resources,omitempty"`
	RiskLevels      []RiskLevel `json:"risk_levels,omitempty"`
	ComplianceFlags []string    `json:"compliance_flags,omitempty"`

	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Matches reports whether e satisfies every filter of q except pagination.
func (q *Query) Matches(e *Event) bool {
	if !q.TimeRange.Contains(e.Timestamp) {
		return false
	}
	if len(q.EventTypes) > 0 && !slices.Contains(q.EventTypes, e.Type) {
		return false
	}
	if len(q.Actors) > 0 && !slices.Contains(q.Actors, e.Actor) {
		return false
	}
	if len(q.Resources) > 0 && !slices.Contains(q.Resources, e.Resource) {
		return false
	}
	if len(q.RiskLevels) > 0 && !slices.Contains(q.RiskLevels, e.RiskLevel) {
		return false
	}
	if len(q.ComplianceFlags) > 0 && !slices.ContainsFunc(q.ComplianceFlags, func(f string) bool {
		return slices.Contains(e.ComplianceFlags, f)
	}) {
		return false
	}
	return true
}

// WriteOptions carries sink-side settings passed through by the recorder.
type WriteOptions struct {
	// RetentionDays is how long the sink keeps the batch. Zero keeps it
	// forever.
	RetentionDays int
}

// Writer persists sealed events.
type Writer interface {
	Write(ctx context.Context, events []*Event, opts WriteOptions) error
	Close() error
}

// Sink is a Writer that can also be queried.
type Sink interface {
	Writer
	Query(ctx context.Context, q *Query) ([]*Event, error)
}

// Pruner is implemented by sinks that expire events on their own.
type Pruner interface {
	// DeleteExpired removes events whose retention ended at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Escalator receives HIGH and CRITICAL events as soon as they are recorded.
type Escalator interface {
	Escalate(ctx context.Context, event *Event) error
}
