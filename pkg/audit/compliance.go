package audit

import "strings"

// ComplianceFilter narrows query results to events tagged with a standard,
// control or requirement. Empty fields match anything.
type ComplianceFilter struct {
	Standard    string `json:"standard,omitempty"`
	Control     string `json:"control,omitempty"`
	Requirement string `json:"requirement,omitempty"`
}

// IsZero reports whether the filter matches every event.
func (f ComplianceFilter) IsZero() bool {
	return f.Standard == "" && f.Control == "" && f.Requirement == ""
}

// Matches reports whether e satisfies the filter. A filter naming only a
// standard also matches events that carry the standard as a flag.
func (f ComplianceFilter) Matches(e *Event) bool {
	if f.IsZero() {
		return true
	}
	for _, c := range e.Compliance {
		if f.matchesControl(c) {
			return true
		}
	}
	if f.Control == "" && f.Requirement == "" {
		for _, flag := range e.ComplianceFlags {
			if strings.EqualFold(flag, f.Standard) {
				return true
			}
		}
	}
	return false
}

func (f ComplianceFilter) matchesControl(c ComplianceControl) bool {
	if f.Standard != "" && !strings.EqualFold(c.Standard, f.Standard) {
		return false
	}
	if f.Control != "" && !strings.EqualFold(c.Control, f.Control) {
		return false
	}
	if f.Requirement != "" && !strings.Contains(strings.ToLower(c.Requirement), strings.ToLower(f.Requirement)) {
		return false
	}
	return true
}

// FilterCompliance returns the events matching f, preserving order.
func FilterCompliance(events []*Event, f ComplianceFilter) []*Event {
	if f.IsZero() {
		return events
	}
	out := make([]*Event, 0, len(events))
	for _, e := range events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
