// Package override resolves the effective value of a config for a request
// context. Evaluation is pure: no I/O, no clocks and no randomness, so the
// same inputs always produce the same value on the server and in SDKs.
package override

import (
	"strings"

	"confhub/internal/types"
	"confhub/internal/value"
)

// Result is the outcome of an evaluation
type Result struct {
	Value    value.Value `json:"value"`
	Override string      `json:"override,omitempty"`
	Matched  bool        `json:"matched"`
}

// Evaluator evaluates overrides with a set of operators.
// Register all custom operators before sharing an Evaluator between goroutines.
type Evaluator struct {
	operators map[types.Operator]MatchFunc
}

// New creates an evaluator holding the built-in operators
func New() *Evaluator {
	ops := make(map[types.Operator]MatchFunc, len(builtinOperators))
	for name, fn := range builtinOperators {
		ops[name] = fn
	}
	return &Evaluator{operators: ops}
}

var defaultEvaluator = New()

// Evaluate returns the value of the first override whose conditions all
// match ctx, or base when none does.
func Evaluate(base value.Value, overrides []types.Override, ctx value.Value) value.Value {
	return defaultEvaluator.Evaluate(base, overrides, ctx)
}

// EvaluateDetailed is like Evaluate but also reports which override matched
func EvaluateDetailed(base value.Value, overrides []types.Override, ctx value.Value) Result {
	return defaultEvaluator.EvaluateDetailed(base, overrides, ctx)
}

// Register adds or replaces a leaf operator
func (e *Evaluator) Register(name types.Operator, fn MatchFunc) {
	e.operators[name] = fn
}

// Has reports whether the operator is known
func (e *Evaluator) Has(name types.Operator) bool {
	if name.IsComposite() {
		return true
	}
	_, ok := e.operators[name]
	return ok
}

// Evaluate returns the effective value for ctx
func (e *Evaluator) Evaluate(base value.Value, overrides []types.Override, ctx value.Value) value.Value {
	return e.EvaluateDetailed(base, overrides, ctx).Value
}

// EvaluateDetailed returns the effective value for ctx and the matching override
func (e *Evaluator) EvaluateDetailed(base value.Value, overrides []types.Override, ctx value.Value) Result {
	for _, o := range overrides {
		if e.matchAll(o.Conditions, ctx) {
			return Result{Value: o.Value, Override: o.Name, Matched: true}
		}
	}
	return Result{Value: base}
}

// Matches reports whether a single condition holds for ctx
func (e *Evaluator) Matches(cond types.Condition, ctx value.Value) bool {
	switch cond.Operator {
	case types.OperatorAnd:
		return len(cond.Conditions) > 0 && e.matchAll(cond.Conditions, ctx)
	case types.OperatorOr:
		for _, c := range cond.Conditions {
			if e.Matches(c, ctx) {
				return true
			}
		}
		return false
	case types.OperatorNot:
		return len(cond.Conditions) > 0 && !e.matchAll(cond.Conditions, ctx)
	}

	fn, ok := e.operators[cond.Operator]
	if !ok || cond.Value.Unresolved {
		return false
	}
	actual, ok := Property(ctx, cond.Property)
	if !ok {
		return false
	}
	return fn(actual, cond.Value.Value, cond)
}

// An override with no conditions always matches.
func (e *Evaluator) matchAll(conds []types.Condition, ctx value.Value) bool {
	for _, c := range conds {
		if !e.Matches(c, ctx) {
			return false
		}
	}
	return true
}

// Property reads a dotted path from ctx. A flat key equal to the whole
// path takes precedence over the nested lookup.
func Property(ctx value.Value, path string) (value.Value, bool) {
	if path == "" {
		return value.Value{}, false
	}
	if v, ok := ctx.Get(path); ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return value.Value{}, false
	}
	return ctx.Lookup(strings.Split(path, "."))
}
