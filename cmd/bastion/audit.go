package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/audit/export"
	"bastion-hq/aegis/pkg/audit/retention"
	"bastion-hq/aegis/pkg/cli"
)

var auditFlags struct {
	since       time.Duration
	timeRange   string
	types       []string
	actors      []string
	resources   []string
	risks       []string
	flags       []string
	standard    string
	control     string
	requirement string
	limit       int
	offset      int
	sort        string
	format      string
	output      string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and maintain the audit trail",
	Long: `Query and maintain the encrypted audit trail.

Subcommands:
  query   - Query, decrypt and export audit events
  prune   - Delete events whose retention has ended`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events",
	Long: `Query audit events. Matching events are read from the configured sink,
their sealed details are decrypted through the key service, and compliance
filters are applied to the decrypted events.

Time Range Format:
  Either --since with a duration, or --time-range as an RFC3339 interval
  "start/end", e.g. "2026-10-01T00:00:00Z/2026-10-02T00:00:00Z".

Examples:
  # High risk events of the last day
  bastion audit query --since 24h --risk HIGH --risk CRITICAL

  # SOC2 evidence for one control, exported as CSV
  bastion audit query --since 720h --standard SOC2 --control CC6.1 --format csv -o cc61.csv`,
	RunE: runAuditQuery,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired audit events",
	Long: `Delete audit events whose retention period has ended. Retention is
fixed per event when it is written; this command only removes events that
are already past it.`,
	RunE: runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditPruneCmd)

	f := auditQueryCmd.Flags()
	f.DurationVar(&auditFlags.since, "since", 24*time.Hour, "query events newer than this")
	f.StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end), overrides --since")
	f.StringSliceVar(&auditFlags.types, "type", nil, "filter by event type (repeatable)")
	f.StringSliceVar(&auditFlags.actors, "actor", nil, "filter by actor (repeatable)")
	f.StringSliceVar(&auditFlags.resources, "resource", nil, "filter by resource (repeatable)")
	f.StringSliceVar(&auditFlags.risks, "risk", nil, "filter by risk level: LOW, MEDIUM, HIGH, CRITICAL (repeatable)")
	f.StringSliceVar(&auditFlags.flags, "flag", nil, "filter by compliance flag (repeatable)")
	f.StringVar(&auditFlags.standard, "standard", "", "compliance standard, e.g. SOC2")
	f.StringVar(&auditFlags.control, "control", "", "compliance control id")
	f.StringVar(&auditFlags.requirement, "requirement", "", "compliance requirement id")
	f.IntVar(&auditFlags.limit, "limit", 100, "max results")
	f.IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	f.StringVar(&auditFlags.sort, "sort", "desc", "sort order by timestamp: asc, desc")
	f.StringVar(&auditFlags.format, "format", "text", "output format: text, json, csv")
	f.StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	q, err := buildAuditQuery(time.Now())
	if err != nil {
		return cli.NewExitError(cli.ExitUsage, err)
	}
	var exporter export.Exporter
	if auditFlags.format != "text" {
		if exporter, err = export.New(auditFlags.format, true); err != nil {
			return cli.NewExitError(cli.ExitUsage, err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	c := newComponents(cfg, logger)
	defer c.Close()
	if err := c.buildAudit(); err != nil {
		return cli.NewCommandError("audit query", err)
	}

	events, err := c.recorder.Query(cmd.Context(), q, audit.ComplianceFilter{
		Standard:    auditFlags.standard,
		Control:     auditFlags.control,
		Requirement: auditFlags.requirement,
	})
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}

	w := cmd.OutOrStdout()
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if exporter != nil {
		return exporter.Export(cmd.Context(), events, w)
	}
	return writeEventTable(w, events)
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	c := newComponents(cfg, logger)
	defer c.Close()
	if err := c.buildSink(); err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	sink, ok := c.sink.(audit.Pruner)
	if !ok {
		return cli.NewCommandError("audit prune", fmt.Errorf("audit sink %q does not support pruning", cfg.Audit.Sink))
	}

	deleted, err := retention.NewPruner(sink, retention.Config{}, logger).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired events\n", deleted)
	return nil
}

// buildAuditQuery turns the query flags into an audit.Query.
func buildAuditQuery(now time.Time) (*audit.Query, error) {
	q := &audit.Query{
		Actors:          auditFlags.actors,
		Resources:       auditFlags.resources,
		ComplianceFlags: auditFlags.flags,
		Limit:           auditFlags.limit,
		Offset:          auditFlags.offset,
		SortOrder:       strings.ToLower(auditFlags.sort),
	}

	if auditFlags.timeRange != "" {
		tr, err := parseTimeRange(auditFlags.timeRange)
		if err != nil {
			return nil, err
		}
		q.TimeRange = tr
	} else {
		if auditFlags.since <= 0 {
			return nil, errors.New("--since must be positive")
		}
		q.TimeRange = audit.TimeRange{Start: now.Add(-auditFlags.since), End: now}
	}

	for _, t := range auditFlags.types {
		q.EventTypes = append(q.EventTypes, audit.EventType(strings.ToUpper(t)))
	}
	for _, r := range auditFlags.risks {
		q.RiskLevels = append(q.RiskLevels, audit.RiskLevel(strings.ToUpper(r)))
	}
	return q, nil
}

// parseTimeRange parses an RFC3339 interval "start/end".
func parseTimeRange(s string) (audit.TimeRange, error) {
	startStr, endStr, ok := strings.Cut(s, "/")
	if !ok {
		return audit.TimeRange{}, fmt.Errorf("invalid time range %q: want start/end", s)
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(startStr))
	if err != nil {
		return audit.TimeRange{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(endStr))
	if err != nil {
		return audit.TimeRange{}, fmt.Errorf("invalid end time: %w", err)
	}
	if start.After(end) {
		return audit.TimeRange{}, errors.New("start time must not be after end time")
	}
	return audit.TimeRange{Start: start, End: end}, nil
}

func writeEventTable(w io.Writer, events []*audit.Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tID\tTYPE\tRISK\tACTOR\tACTION\tRESOURCE\tSTATUS")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.ID, e.Type, e.RiskLevel,
			e.Actor, e.Action, e.Resource, e.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d events\n", len(events))
	return err
}
