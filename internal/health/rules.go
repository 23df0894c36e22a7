// Package health decides whether a risk signal opens protection eligibility.
package health

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"restructure-engine/internal/model"
)

// Rule is a CEL expression over the event data, exposed as the map "input".
type Rule struct {
	Event      model.HealthEventType `yaml:"event"`
	Expression string                `yaml:"expression"`
	Reason     string                `yaml:"reason"`
}

// DefaultRules triggers on sustained usage drops, long downtime, likely
// overdue payments and health scores under their threshold. Manual
// requests always trigger.
var DefaultRules = []Rule{
	{model.HealthLowUsage, "input.delta <= -0.2", "usage dropped at least 20%"},
	{model.HealthDowntime, "input.hours >= 48.0", "vehicle down for 48 hours or more"},
	{model.HealthOverduePred, "input.prob >= 0.6", "overdue payment predicted"},
	{model.HealthScoreDrop, "has(input.health_score) && input.health_score < (input.threshold > 0.0 ? input.threshold : 60.0)", "health score below threshold"},
	{model.HealthManualRequest, "true", "manual request"},
}

// Evaluator runs the rule for an event type, compiling each expression once.
type Evaluator struct {
	env   *cel.Env
	rules map[model.HealthEventType]Rule

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator builds an evaluator. Rules override the defaults per event type.
func NewEvaluator(rules []Rule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	e := &Evaluator{
		env:      env,
		rules:    make(map[model.HealthEventType]Rule, len(DefaultRules)),
		programs: make(map[string]cel.Program),
	}
	for _, r := range DefaultRules {
		e.rules[r.Event] = r
	}
	for _, r := range rules {
		e.rules[r.Event] = r
	}

	// Fail at startup rather than on the first event.
	for _, r := range e.rules {
		if _, err := e.program(r.Expression); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Event, err)
		}
	}
	return e, nil
}

// Evaluate reports whether the event should open eligibility and why.
func (e *Evaluator) Evaluate(ev model.HealthEvent) (bool, string, error) {
	rule, ok := e.rules[ev.Type]
	if !ok {
		return false, "", fmt.Errorf("unknown health event type %q", ev.Type)
	}

	prg, err := e.program(rule.Expression)
	if err != nil {
		return false, "", err
	}

	out, _, err := prg.Eval(map[string]interface{}{"input": input(ev.Data)})
	if err != nil {
		return false, "", fmt.Errorf("CEL eval error: %w", err)
	}
	triggered, ok := out.Value().(bool)
	if !ok {
		return false, "", fmt.Errorf("rule %s: result not boolean", ev.Type)
	}
	if !triggered {
		return false, fmt.Sprintf("%s: threshold not met", ev.Type), nil
	}
	return true, fmt.Sprintf("%s: %s", ev.Type, rule.Reason), nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.programs[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.programs[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q does not return bool", expr)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	e.programs[expr] = prg
	return prg, nil
}

// input exposes the event data to CEL. A missing health score stays absent
// so rules can test for it with has().
func input(d model.HealthData) map[string]interface{} {
	in := map[string]interface{}{
		"delta":     d.Delta,
		"window":    d.Window,
		"hours":     d.Hours,
		"prob":      d.Prob,
		"threshold": d.Threshold,
	}
	if d.HealthScore != nil {
		in["health_score"] = *d.HealthScore
	}
	return in
}

// Score extracts the health score carried by an event, if any.
func Score(ev model.HealthEvent) *float64 {
	if ev.Type != model.HealthScoreDrop || ev.Data.HealthScore == nil {
		return nil
	}
	s := *ev.Data.HealthScore
	return &s
}
