package export

import (
	"context"
	"encoding/json"
	"io"

	"bastion-hq/aegis/pkg/audit"
)

// JSONExporter writes events as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export implements Exporter. An empty result is written as [].
func (e *JSONExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if events == nil {
		events = []*audit.Event{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(events); err != nil {
		return audit.NewExportError("json", len(events), err)
	}
	return nil
}
