package audit

import (
	"testing"
	"time"
)

func TestEventType_IsValid(t *testing.T) {
	if !EventSecurityAlert.IsValid() || !EventSystemChange.IsValid() {
		t.Error("known event types should be valid")
	}
	if EventType("LOGIN").IsValid() || EventType("").IsValid() {
		t.Error("unknown event types should be invalid")
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		level     RiskLevel
		valid     bool
		escalates bool
	}{
		{"", true, false},
		{RiskLow, true, false},
		{RiskMedium, true, false},
		{RiskHigh, true, true},
		{RiskCritical, true, true},
		{"SEVERE", false, false},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, want %v", tt.level, got, tt.valid)
		}
		if got := tt.level.Escalates(); got != tt.escalates {
			t.Errorf("%q.Escalates() = %v, want %v", tt.level, got, tt.escalates)
		}
	}
}

func TestEvent_Clone(t *testing.T) {
	e := &Event{
		ID:              "e1",
		ComplianceFlags: []string{StandardGDPR},
		Details:         map[string]any{"k": "v"},
		SecurityContext: &SecurityContext{Roles: []string{"admin"}},
	}
	c := e.Clone()
	c.ComplianceFlags[0] = "X"
	c.Details["k"] = "changed"
	c.SecurityContext.Roles[0] = "guest"

	if e.ComplianceFlags[0] != StandardGDPR || e.Details["k"] != "v" || e.SecurityContext.Roles[0] != "admin" {
		t.Errorf("Clone shares state with original: %+v", e)
	}
	if e.Sealed() {
		t.Error("event with plaintext details reported as sealed")
	}
}

func TestQuery_Matches(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Event{
		Timestamp:       base,
		Type:            EventSecurityAlert,
		Actor:           "203.0.113.7",
		Resource:        "/api/orders",
		RiskLevel:       RiskHigh,
		ComplianceFlags: []string{StandardPCIDSS},
	}
	window := TimeRange{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"time range only", Query{TimeRange: window}, true},
		{"inclusive bounds", Query{TimeRange: TimeRange{Start: base, End: base}}, true},
		{"outside range", Query{TimeRange: TimeRange{Start: base.Add(time.Minute), End: base.Add(time.Hour)}}, false},
		{"type match", Query{TimeRange: window, EventTypes: []EventType{EventResourceAccess, EventSecurityAlert}}, true},
		{"type mismatch", Query{TimeRange: window, EventTypes: []EventType{EventResourceAccess}}, false},
		{"actor", Query{TimeRange: window, Actors: []string{"203.0.113.7"}}, true},
		{"resource mismatch", Query{TimeRange: window, Resources: []string{"/admin"}}, false},
		{"risk", Query{TimeRange: window, RiskLevels: []RiskLevel{RiskHigh, RiskCritical}}, true},
		{"compliance flag", Query{TimeRange: window, ComplianceFlags: []string{StandardGDPR, StandardPCIDSS}}, true},
		{"compliance flag mismatch", Query{TimeRange: window, ComplianceFlags: []string{StandardHIPAA}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(e); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterCompliance(t *testing.T) {
	events := []*Event{
		{ID: "pci", Compliance: []ComplianceControl{{Standard: "PCI_DSS", Control: "10.2.4", Requirement: "Invalid logical access attempts"}}},
		{ID: "sox", Compliance: []ComplianceControl{{Standard: "SOX", Control: "404", Requirement: "Internal controls"}}},
		{ID: "gdpr-flag", ComplianceFlags: []string{"GDPR"}},
		{ID: "none"},
	}

	tests := []struct {
		name   string
		filter ComplianceFilter
		want   []string
	}{
		{"zero filter", ComplianceFilter{}, []string{"pci", "sox", "gdpr-flag", "none"}},
		{"standard", ComplianceFilter{Standard: "pci_dss"}, []string{"pci"}},
		{"standard via flag", ComplianceFilter{Standard: "GDPR"}, []string{"gdpr-flag"}},
		{"control", ComplianceFilter{Standard: "PCI_DSS", Control: "10.2.4"}, []string{"pci"}},
		{"control mismatch", ComplianceFilter{Standard: "PCI_DSS", Control: "8.1"}, nil},
		{"requirement substring", ComplianceFilter{Requirement: "internal"}, []string{"sox"}},
		{"control only skips flags", ComplianceFilter{Control: "404"}, []string{"sox"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterCompliance(events, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %v", len(got), tt.want)
			}
			for i, e := range got {
				if e.ID != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, e.ID, tt.want[i])
				}
			}
		})
	}
}
