package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"bastion-hq/aegis/pkg/audit"
)

func sampleEvents() []*audit.Event {
	return []*audit.Event{
		{
			ID:              "e1",
			Timestamp:       time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
			Type:            audit.EventSecurityAlert,
			Actor:           "203.0.113.7",
			Action:          "evaluate",
			Resource:        "/login",
			RiskLevel:       audit.RiskHigh,
			ComplianceFlags: []string{"PCI_DSS", "SOC2"},
			Metadata:        audit.Metadata{CorrelationID: "c-1"},
			Details:         map[string]any{"reason": "rule block-sqlmap matched, \"quoted\""},
		},
		{
			ID:              "e2",
			Timestamp:       time.Date(2026, 2, 3, 4, 6, 0, 0, time.UTC),
			Type:            audit.EventResourceAccess,
			Actor:           "198.51.100.2",
			Action:          "evaluate",
			SecurityContext: &audit.SecurityContext{Roles: []string{"reader"}, MFAVerified: true},
		},
	}
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(true).Export(context.Background(), sampleEvents(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var decoded []audit.Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Details["reason"] == nil || !decoded[1].SecurityContext.MFAVerified {
		t.Errorf("decoded = %+v", decoded)
	}

	buf.Reset()
	NewJSONExporter(false).Export(context.Background(), nil, &buf)
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q, want []", buf.String())
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sampleEvents(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if len(rows[0]) != len(csvHeader) || rows[0][0] != "id" {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	if first[1] != "2026-02-03T04:05:06Z" || first[10] != "PCI_DSS;SOC2" || first[12] != "c-1" {
		t.Errorf("row 1 = %v", first)
	}
	if !strings.Contains(first[17], `block-sqlmap`) || first[18] != "" {
		t.Errorf("details/security_context cells = %q / %q", first[17], first[18])
	}
	if rows[2][17] != "" || !strings.Contains(rows[2][18], `"mfa_verified":true`) {
		t.Errorf("row 2 nested cells = %q / %q", rows[2][17], rows[2][18])
	}
}

func TestNew(t *testing.T) {
	for _, f := range []string{"", "json", "csv"} {
		if _, err := New(f, false); err != nil {
			t.Errorf("New(%q) error = %v", f, err)
		}
	}
	if _, err := New("xml", false); err == nil {
		t.Error("New(xml) should fail")
	}
}
