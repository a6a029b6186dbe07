package engine

import (
	"fmt"
	"regexp"

	"bastion-hq/aegis/pkg/waf"
)

// Operator compares an extracted field value with a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

// IsValid reports whether op is a supported operator.
func (op Operator) IsValid() bool {
	switch op {
	case OpEquals, OpContains, OpRegex, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition is a single field/operator/value test.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value" json:"value"`

	re     *regexp.Regexp
	number float64
}

// RuleKind tags the variant held by a Rule.
type RuleKind int

const (
	KindConditions RuleKind = iota
	KindPredicate
)

// String returns the kind name.
func (k RuleKind) String() string {
	switch k {
	case KindConditions:
		return "conditions"
	case KindPredicate:
		return "predicate"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// Predicate is an externally supplied block test over the raw request.
type Predicate func(req *waf.Request) bool

// Rule is either a condition rule or a predicate rule, selected by Kind.
type Rule struct {
	ID          string
	Name        string
	Description string
	Kind        RuleKind
	Action      waf.Action

	// Conditions is set for KindConditions.
	Conditions []Condition

	// Predicate is set for KindPredicate.
	Predicate Predicate

	compiled bool
}

// NewConditionRule builds and validates a condition rule.
func NewConditionRule(id string, action waf.Action, conditions ...Condition) (*Rule, error) {
	r := &Rule{
		ID:         id,
		Kind:       KindConditions,
		Action:     action,
		Conditions: conditions,
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewPredicateRule builds a predicate rule. A true predicate blocks.
func NewPredicateRule(id string, predicate Predicate) *Rule {
	return &Rule{
		ID:        id,
		Kind:      KindPredicate,
		Action:    waf.ActionBlock,
		Predicate: predicate,
	}
}

// compile validates the rule and prepares regex and numeric operands. A
// compiled rule is not modified again, so it can be shared between engines.
func (r *Rule) compile() error {
	if r.compiled {
		return nil
	}
	if r.ID == "" {
		return &ValidationError{Message: "rule id is required"}
	}

	switch r.Kind {
	case KindPredicate:
		if r.Predicate == nil {
			return fmt.Errorf("rule %s: %w", r.ID, ErrNilPredicate)
		}
		r.compiled = true
		return nil
	case KindConditions:
	default:
		return &ValidationError{RuleID: r.ID, Message: fmt.Sprintf("unknown rule kind %d", int(r.Kind))}
	}

	switch r.Action {
	case waf.ActionBlock, waf.ActionChallenge, waf.ActionCount, waf.ActionAllow:
	default:
		return &ValidationError{RuleID: r.ID, Message: fmt.Sprintf("unsupported action %q", r.Action)}
	}
	if len(r.Conditions) == 0 {
		return &ValidationError{RuleID: r.ID, Message: "at least one condition is required"}
	}

	for i := range r.Conditions {
		c := &r.Conditions[i]
		if c.Field == "" {
			return &ValidationError{RuleID: r.ID, Message: fmt.Sprintf("condition %d has no field", i)}
		}
		if !c.Operator.IsValid() {
			return &ValidationError{RuleID: r.ID, Field: c.Field, Message: fmt.Sprintf("unknown operator %q", c.Operator)}
		}
		// A missing value would make contains match every request.
		if c.Value == nil {
			return &ValidationError{RuleID: r.ID, Field: c.Field, Message: fmt.Sprintf("%s requires a value", c.Operator)}
		}
		if v, ok := c.Value.(string); ok && v == "" && c.Operator == OpContains {
			return &ValidationError{RuleID: r.ID, Field: c.Field, Message: "contains value must not be empty"}
		}

		switch c.Operator {
		case OpRegex:
			pattern, ok := c.Value.(string)
			if !ok {
				return &ValidationError{RuleID: r.ID, Field: c.Field, Message: "regex value must be a string"}
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return &ValidationError{RuleID: r.ID, Field: c.Field, Message: fmt.Sprintf("invalid regex: %v", err)}
			}
			c.re = re
		case OpGreaterThan, OpLessThan:
			n, ok := toFloat64(c.Value)
			if !ok {
				return &ValidationError{RuleID: r.ID, Field: c.Field, Message: fmt.Sprintf("%s value must be numeric", c.Operator)}
			}
			c.number = n
		}
	}
	r.compiled = true
	return nil
}

// Result is the outcome of evaluating a rule set.
type Result struct {
	// Action is ALLOW unless a terminal rule matched.
	Action waf.Action

	// RuleID is the id of the terminal rule, if any.
	RuleID string

	// Reason describes the match.
	Reason string

	// Counted lists COUNT rules that matched before evaluation ended.
	Counted []string
}

// Terminal reports whether the result ends the pipeline.
func (r *Result) Terminal() bool {
	return r.Action == waf.ActionBlock || r.Action == waf.ActionChallenge
}
