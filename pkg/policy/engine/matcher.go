package engine

import (
	"fmt"

	"bastion-hq/aegis/pkg/waf"
)

// matchRule is the single dispatch point for both rule variants. A panic in
// a predicate is reported as an EvaluationError.
func matchRule(rule *Rule, req *waf.Request) (matched bool, err error) {
	switch rule.Kind {
	case KindConditions:
		return matchConditions(rule.Conditions, req), nil

	case KindPredicate:
		defer func() {
			if r := recover(); r != nil {
				matched = false
				err = &EvaluationError{RuleID: rule.ID, Cause: fmt.Errorf("predicate panicked: %v", r)}
			}
		}()
		return rule.Predicate(req), nil

	default:
		return false, &EvaluationError{RuleID: rule.ID, Cause: fmt.Errorf("unknown rule kind %s", rule.Kind)}
	}
}

// matchConditions reports whether every condition holds. It stops at the
// first failing condition.
func matchConditions(conditions []Condition, req *waf.Request) bool {
	for i := range conditions {
		c := &conditions[i]
		if !evaluateOperator(c, ExtractField(req, c.Field)) {
			return false
		}
	}
	return true
}
