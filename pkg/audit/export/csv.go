package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"time"

	"bastion-hq/aegis/pkg/audit"
)

// CSVExporter writes one row per event.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "timestamp", "type", "actor", "action", "resource", "status",
	"ip_address", "user_agent", "risk_level", "compliance_flags", "compliance",
	"correlation_id", "request_id", "session_id", "environment", "version",
	"details", "security_context",
}

// Export implements Exporter.
func (e *CSVExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return audit.NewExportError("csv", len(events), err)
		}
	}

	for i, event := range events {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := eventToRow(event)
		if err != nil {
			return audit.NewExportError("csv", len(events), err)
		}
		if err := writer.Write(row); err != nil {
			return audit.NewExportError("csv", len(events), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(events), err)
	}
	return nil
}

func eventToRow(e *audit.Event) ([]string, error) {
	compliance, err := jsonCell(e.Compliance)
	if err != nil {
		return nil, err
	}
	details, err := jsonCell(e.Details)
	if err != nil {
		return nil, err
	}
	securityContext, err := jsonCell(e.SecurityContext)
	if err != nil {
		return nil, err
	}

	return []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Type),
		e.Actor,
		e.Action,
		e.Resource,
		e.Status,
		e.IPAddress,
		e.UserAgent,
		string(e.RiskLevel),
		strings.Join(e.ComplianceFlags, ";"),
		compliance,
		e.Metadata.CorrelationID,
		e.Metadata.RequestID,
		e.Metadata.SessionID,
		e.Metadata.Environment,
		e.Metadata.Version,
		details,
		securityContext,
	}, nil
}

// jsonCell encodes v for a CSV cell. Nil values become empty cells.
func jsonCell[T any](v T) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if s := string(data); s != "null" {
		return s, nil
	}
	return "", nil
}
