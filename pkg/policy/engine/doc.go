// Package engine evaluates request rules.
//
// A rule is either a set of conditions or an externally supplied predicate:
//
//   - Condition rules hold a list of {field, operator, value} conditions.
//     Every condition must match for the rule's action to apply; the first
//     failing condition ends evaluation of that rule.
//   - Predicate rules wrap a func(*waf.Request) bool. A true result blocks.
//
// Condition rules are evaluated first, in order, then predicate rules in
// registration order. A matching BLOCK or CHALLENGE rule ends evaluation; a
// matching COUNT rule is recorded and evaluation continues.
//
// # Fields
//
// Field paths are resolved by a fixed accessor table rather than reflection:
//
//	method, path, ip, user_agent, body, body_size, query
//	headers.<name>      header value (case-insensitive)
//	query.<name>        first query parameter value
//	body.<a>.<b>        value inside a parsed JSON body
//
// Unknown or missing fields resolve to the empty string.
//
// # Operators
//
//	equals       string equality, numeric equality when both sides are numbers
//	contains     substring match
//	regex        regular expression match (compiled when the rule is built)
//	greaterThan  numeric comparison; non-numeric values never match
//	lessThan     numeric comparison; non-numeric values never match
//
// # Usage
//
//	e := engine.NewEngine(logger)
//	rule, err := engine.NewConditionRule("block-sqlmap", waf.ActionBlock,
//	    engine.Condition{Field: "headers.user-agent", Operator: engine.OpContains, Value: "sqlmap"})
//	e.AddRule(rule)
//	e.AddRule(engine.NewPredicateRule("deny-list", denyList.Contains))
//
//	res, err := e.EvaluateStatic(ctx, req)
package engine
