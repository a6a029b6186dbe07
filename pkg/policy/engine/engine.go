package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bastion-hq/aegis/pkg/waf"
)

// Engine holds an ordered set of condition rules and predicate rules.
// It is safe for concurrent evaluation while rules are replaced.
type Engine struct {
	mu     sync.RWMutex
	static []*Rule
	custom []*Rule
	logger *slog.Logger
}

// NewEngine creates an empty engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger.With("component", "policy.engine"),
	}
}

// AddRule appends rule to the static or custom list according to its kind.
func (e *Engine) AddRule(rule *Rule) error {
	if err := rule.compile(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasRuleLocked(rule.ID) {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrDuplicateRule)
	}
	if rule.Kind == KindPredicate {
		e.custom = append(e.custom, rule)
	} else {
		e.static = append(e.static, rule)
	}
	return nil
}

// RegisterPredicate adds a predicate rule.
func (e *Engine) RegisterPredicate(id string, predicate Predicate) error {
	return e.AddRule(NewPredicateRule(id, predicate))
}

// ReplaceStaticRules atomically swaps the condition rule list. Predicate
// rules are kept. Nothing is replaced if any rule is invalid.
func (e *Engine) ReplaceStaticRules(rules []*Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Kind != KindConditions {
			return &ValidationError{RuleID: r.ID, Message: "only condition rules can be loaded as static rules"}
		}
		if err := r.compile(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %s: %w", r.ID, ErrDuplicateRule)
		}
		seen[r.ID] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.custom {
		if seen[c.ID] {
			return fmt.Errorf("rule %s: %w", c.ID, ErrDuplicateRule)
		}
	}
	e.static = append([]*Rule(nil), rules...)

	e.logger.Info("static rules replaced", "rule_count", len(rules))
	return nil
}

// StaticRules returns a snapshot of the condition rules.
func (e *Engine) StaticRules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Rule(nil), e.static...)
}

// CustomRules returns a snapshot of the predicate rules.
func (e *Engine) CustomRules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Rule(nil), e.custom...)
}

// EvaluateStatic evaluates condition rules in order.
func (e *Engine) EvaluateStatic(ctx context.Context, req *waf.Request) (*Result, error) {
	return e.evaluate(ctx, e.StaticRules(), req)
}

// EvaluateCustom evaluates predicate rules in registration order.
func (e *Engine) EvaluateCustom(ctx context.Context, req *waf.Request) (*Result, error) {
	return e.evaluate(ctx, e.CustomRules(), req)
}

// Evaluate runs static rules, then custom rules if no static rule ended
// evaluation.
func (e *Engine) Evaluate(ctx context.Context, req *waf.Request) (*Result, error) {
	res, err := e.EvaluateStatic(ctx, req)
	if err != nil || res.Terminal() {
		return res, err
	}
	custom, err := e.EvaluateCustom(ctx, req)
	if err != nil {
		return custom, err
	}
	custom.Counted = append(res.Counted, custom.Counted...)
	return custom, nil
}

func (e *Engine) evaluate(ctx context.Context, rules []*Rule, req *waf.Request) (*Result, error) {
	res := &Result{Action: waf.ActionAllow}

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		matched, err := matchRule(rule, req)
		if err != nil {
			return res, err
		}
		if !matched {
			continue
		}

		switch rule.Action {
		case waf.ActionCount:
			res.Counted = append(res.Counted, rule.ID)
			e.logger.Debug("count rule matched", "rule_id", rule.ID, "path", req.Path)
		case waf.ActionBlock, waf.ActionChallenge:
			res.Action = rule.Action
			res.RuleID = rule.ID
			res.Reason = ruleReason(rule)
			return res, nil
		}
	}
	return res, nil
}

func (e *Engine) hasRuleLocked(id string) bool {
	for _, r := range e.static {
		if r.ID == id {
			return true
		}
	}
	for _, r := range e.custom {
		if r.ID == id {
			return true
		}
	}
	return false
}

func ruleReason(rule *Rule) string {
	name := rule.Name
	if name == "" {
		name = rule.ID
	}
	if rule.Kind == KindPredicate {
		return fmt.Sprintf("custom rule %s matched", name)
	}
	return fmt.Sprintf("rule %s matched", name)
}
