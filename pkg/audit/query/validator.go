// Package query validates audit queries and fills in defaults.
package query

import (
	"errors"
	"fmt"

	"bastion-hq/aegis/pkg/audit"
)

const (
	// DefaultLimit is the number of events returned when no limit is set.
	DefaultLimit = 100

	// MaxLimit is the largest page a single query may request.
	MaxLimit = 10000
)

// ValidSortOrders contains the accepted sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate checks q and returns a QueryError describing the first problem.
func Validate(q *audit.Query) error {
	if q == nil {
		return audit.NewQueryError(nil, errors.New("query is required"))
	}

	tr := q.TimeRange
	if tr.Start.IsZero() || tr.End.IsZero() {
		return audit.NewQueryError(q, errors.New("time range start and end are required"))
	}
	if tr.Start.After(tr.End) {
		return audit.NewQueryError(q, errors.New("time range start must not be after end"))
	}

	if q.Limit < 0 {
		return audit.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return audit.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return audit.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return audit.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	for _, t := range q.EventTypes {
		if !t.IsValid() {
			return audit.NewQueryError(q, fmt.Errorf("invalid event type: %s", t))
		}
	}
	for _, r := range q.RiskLevels {
		if r == "" || !r.IsValid() {
			return audit.NewQueryError(q, fmt.Errorf("invalid risk level: %q", r))
		}
	}
	return nil
}

// ApplyDefaults fills in the limit and sort order.
func ApplyDefaults(q *audit.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// Paginate applies q's offset and limit to an already ordered slice.
func Paginate(events []*audit.Event, q *audit.Query) []*audit.Event {
	if q.Offset >= len(events) {
		return []*audit.Event{}
	}
	events = events[q.Offset:]
	if q.Limit > 0 && q.Limit < len(events) {
		events = events[:q.Limit]
	}
	return events
}
