// Package export writes audit query results as JSON or CSV.
//
// JSON output is an array of events including opened details and security
// context. CSV flattens each event to one row; nested values are encoded as
// JSON within their cell.
package export

import (
	"context"
	"fmt"
	"io"

	"bastion-hq/aegis/pkg/audit"
)

// Exporter writes events to w.
type Exporter interface {
	Export(ctx context.Context, events []*audit.Event, w io.Writer) error
}

// New returns the exporter for format ("json" or "csv").
func New(format string, pretty bool) (Exporter, error) {
	switch format {
	case "json", "":
		return NewJSONExporter(pretty), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}
