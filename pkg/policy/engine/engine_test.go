package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"bastion-hq/aegis/pkg/waf"
)

func mustRule(t *testing.T, id string, action waf.Action, conds ...Condition) *Rule {
	t.Helper()
	r, err := NewConditionRule(id, action, conds...)
	if err != nil {
		t.Fatalf("NewConditionRule(%s) error = %v", id, err)
	}
	return r
}

func TestOperators(t *testing.T) {
	req := testRequest()
	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Condition{Field: "method", Operator: OpEquals, Value: "POST"}, true},
		{"equals mismatch", Condition{Field: "method", Operator: OpEquals, Value: "GET"}, false},
		{"equals numeric", Condition{Field: "query.id", Operator: OpEquals, Value: 42}, true},
		{"equals numeric float", Condition{Field: "body.order.qty", Operator: OpEquals, Value: 3.0}, true},
		{"equals bool", Condition{Field: "body.coupon", Operator: OpEquals, Value: true}, true},
		{"equals missing is empty", Condition{Field: "headers.x-none", Operator: OpEquals, Value: ""}, true},
		{"contains", Condition{Field: "headers.user-agent", Operator: OpContains, Value: "sqlmap"}, true},
		{"contains miss", Condition{Field: "headers.user-agent", Operator: OpContains, Value: "nikto"}, false},
		{"regex", Condition{Field: "path", Operator: OpRegex, Value: `^/api/(orders|users)$`}, true},
		{"regex miss", Condition{Field: "path", Operator: OpRegex, Value: `^/admin`}, false},
		{"greaterThan", Condition{Field: "body.order.qty", Operator: OpGreaterThan, Value: 2}, true},
		{"greaterThan equal", Condition{Field: "body.order.qty", Operator: OpGreaterThan, Value: 3}, false},
		{"greaterThan string value", Condition{Field: "body_size", Operator: OpGreaterThan, Value: "50"}, true},
		{"lessThan", Condition{Field: "query.id", Operator: OpLessThan, Value: 100}, true},
		{"lessThan non-numeric field", Condition{Field: "method", Operator: OpLessThan, Value: 100}, false},
		{"greaterThan missing field", Condition{Field: "query.none", Operator: OpGreaterThan, Value: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, "r", waf.ActionBlock, tt.cond)
			if got := matchConditions(r.Conditions, req); got != tt.want {
				t.Errorf("match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleValidation(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		action waf.Action
		conds  []Condition
	}{
		{"missing id", "", waf.ActionBlock, []Condition{{Field: "path", Operator: OpEquals, Value: "/"}}},
		{"no conditions", "r", waf.ActionBlock, nil},
		{"bad operator", "r", waf.ActionBlock, []Condition{{Field: "path", Operator: "startsWith", Value: "/"}}},
		{"missing field", "r", waf.ActionBlock, []Condition{{Operator: OpEquals, Value: "/"}}},
		{"bad regex", "r", waf.ActionBlock, []Condition{{Field: "path", Operator: OpRegex, Value: "("}}},
		{"regex not string", "r", waf.ActionBlock, []Condition{{Field: "path", Operator: OpRegex, Value: 5}}},
		{"non-numeric comparison", "r", waf.ActionBlock, []Condition{{Field: "body_size", Operator: OpGreaterThan, Value: "big"}}},
		{"contains without value", "r", waf.ActionBlock, []Condition{{Field: "query.q", Operator: OpContains}}},
		{"equals without value", "r", waf.ActionBlock, []Condition{{Field: "headers.x-debug", Operator: OpEquals}}},
		{"contains empty string", "r", waf.ActionBlock, []Condition{{Field: "query.q", Operator: OpContains, Value: ""}}},
		{"rate limited action", "r", waf.ActionRateLimited, []Condition{{Field: "path", Operator: OpEquals, Value: "/"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConditionRule(tt.id, tt.action, tt.conds...)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}

	e := NewEngine(nil)
	if err := e.AddRule(&Rule{ID: "p", Kind: KindPredicate}); !errors.Is(err, ErrNilPredicate) {
		t.Errorf("AddRule(nil predicate) error = %v, want ErrNilPredicate", err)
	}
}

func TestEngine_ConditionsAreConjunctive(t *testing.T) {
	e := NewEngine(nil)
	e.AddRule(mustRule(t, "post-sqlmap", waf.ActionBlock,
		Condition{Field: "method", Operator: OpEquals, Value: "POST"},
		Condition{Field: "headers.user-agent", Operator: OpContains, Value: "sqlmap"},
		Condition{Field: "path", Operator: OpRegex, Value: "^/admin"},
	))

	res, err := e.EvaluateStatic(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != waf.ActionAllow {
		t.Errorf("Action = %s, want ALLOW when one condition fails", res.Action)
	}

	req := testRequest()
	req.Path = "/admin/users"
	res, _ = e.EvaluateStatic(context.Background(), req)
	if res.Action != waf.ActionBlock || res.RuleID != "post-sqlmap" {
		t.Errorf("result = %+v, want BLOCK by post-sqlmap", res)
	}
}

func TestEngine_FirstBlockShortCircuits(t *testing.T) {
	var customCalls int
	e := NewEngine(nil)
	e.AddRule(mustRule(t, "block-sqlmap", waf.ActionBlock, Condition{Field: "headers.user-agent", Operator: OpContains, Value: "sqlmap"}))
	e.AddRule(mustRule(t, "allow-api", waf.ActionAllow, Condition{Field: "path", Operator: OpContains, Value: "/api"}))
	e.RegisterPredicate("custom", func(*waf.Request) bool { customCalls++; return false })

	res, err := e.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != waf.ActionBlock || res.RuleID != "block-sqlmap" {
		t.Errorf("result = %+v, want BLOCK by block-sqlmap", res)
	}
	if customCalls != 0 {
		t.Errorf("custom predicate evaluated %d times, want 0", customCalls)
	}
}

func TestEngine_CountAndChallenge(t *testing.T) {
	e := NewEngine(nil)
	e.AddRule(mustRule(t, "count-post", waf.ActionCount, Condition{Field: "method", Operator: OpEquals, Value: "POST"}))
	e.AddRule(mustRule(t, "count-api", waf.ActionCount, Condition{Field: "path", Operator: OpContains, Value: "/api"}))
	e.AddRule(mustRule(t, "challenge-big", waf.ActionChallenge, Condition{Field: "body_size", Operator: OpGreaterThan, Value: 10}))

	res, err := e.EvaluateStatic(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != waf.ActionChallenge || !res.Terminal() {
		t.Errorf("Action = %s, want CHALLENGE", res.Action)
	}
	if len(res.Counted) != 2 || res.Counted[0] != "count-post" || res.Counted[1] != "count-api" {
		t.Errorf("Counted = %v", res.Counted)
	}
}

func TestEngine_PredicatesInRegistrationOrder(t *testing.T) {
	var order []string
	e := NewEngine(nil)
	for _, id := range []string{"p1", "p2", "p3"} {
		id := id
		e.RegisterPredicate(id, func(*waf.Request) bool {
			order = append(order, id)
			return id == "p2"
		})
	}

	res, err := e.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != waf.ActionBlock || res.RuleID != "p2" {
		t.Errorf("result = %+v, want BLOCK by p2", res)
	}
	if fmt.Sprint(order) != "[p1 p2]" {
		t.Errorf("evaluation order = %v, want [p1 p2]", order)
	}
}

func TestEngine_PredicatePanic(t *testing.T) {
	e := NewEngine(nil)
	e.RegisterPredicate("boom", func(*waf.Request) bool { panic("nil map") })

	_, err := e.EvaluateCustom(context.Background(), testRequest())
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.RuleID != "boom" {
		t.Errorf("error = %v, want EvaluationError for boom", err)
	}
}

func TestEngine_DuplicateAndReplace(t *testing.T) {
	e := NewEngine(nil)
	r := mustRule(t, "r1", waf.ActionBlock, Condition{Field: "method", Operator: OpEquals, Value: "DELETE"})
	if err := e.AddRule(r); err != nil {
		t.Fatal(err)
	}
	if err := e.AddRule(r); !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("duplicate AddRule() error = %v", err)
	}

	replacement := []*Rule{
		mustRule(t, "r2", waf.ActionBlock, Condition{Field: "method", Operator: OpEquals, Value: "POST"}),
	}
	if err := e.ReplaceStaticRules(replacement); err != nil {
		t.Fatalf("ReplaceStaticRules() error = %v", err)
	}
	if rules := e.StaticRules(); len(rules) != 1 || rules[0].ID != "r2" {
		t.Errorf("StaticRules() = %v", rules)
	}

	bad := []*Rule{{ID: "bad", Kind: KindConditions, Action: waf.ActionBlock}}
	if err := e.ReplaceStaticRules(bad); err == nil {
		t.Error("ReplaceStaticRules() with invalid rule should fail")
	}
	if rules := e.StaticRules(); rules[0].ID != "r2" {
		t.Error("failed replace must keep previous rules")
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	e := NewEngine(nil)
	e.AddRule(mustRule(t, "r", waf.ActionBlock, Condition{Field: "method", Operator: OpEquals, Value: "POST"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EvaluateStatic(ctx, testRequest()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEngine_ConcurrentReplace(t *testing.T) {
	e := NewEngine(nil)
	rule := mustRule(t, "r", waf.ActionBlock, Condition{Field: "method", Operator: OpEquals, Value: "POST"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.ReplaceStaticRules([]*Rule{rule})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := e.EvaluateStatic(context.Background(), testRequest()); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
}
