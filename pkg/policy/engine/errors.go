package engine

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrDuplicateRule indicates two rules share an id.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrNilPredicate indicates a predicate rule without a predicate.
	ErrNilPredicate = errors.New("predicate rule has no predicate")
)

// ValidationError reports an invalid rule definition.
type ValidationError struct {
	RuleID  string
	Field   string
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rule %s: field %q: %s", e.RuleID, e.Field, e.Message)
	}
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Message)
}

// EvaluationError reports a rule that failed while being evaluated.
type EvaluationError struct {
	RuleID string
	Cause  error
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %s: evaluation failed: %v", e.RuleID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}
