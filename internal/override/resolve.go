package override

import (
	"confhub/internal/types"
	"confhub/internal/value"
)

// ReferenceResolver returns the current value of another config by name
type ReferenceResolver func(configName string) (value.Value, bool)

// HasReferences reports whether any condition takes its value from another config
func HasReferences(overrides []types.Override) bool {
	for _, o := range overrides {
		if conditionsHaveReferences(o.Conditions) {
			return true
		}
	}
	return false
}

func conditionsHaveReferences(conds []types.Condition) bool {
	for _, c := range conds {
		if c.Value.Type == types.ConditionValueReference || conditionsHaveReferences(c.Conditions) {
			return true
		}
	}
	return false
}

// Resolve returns a copy of overrides where every reference value is replaced
// by the value found in the referenced config. References that cannot be
// resolved are marked so the condition never matches. The input is not modified.
func Resolve(overrides []types.Override, resolve ReferenceResolver) []types.Override {
	if !HasReferences(overrides) {
		return overrides
	}
	out := make([]types.Override, len(overrides))
	for i, o := range overrides {
		o.Conditions = resolveConditions(o.Conditions, resolve)
		out[i] = o
	}
	return out
}

func resolveConditions(conds []types.Condition, resolve ReferenceResolver) []types.Condition {
	if len(conds) == 0 {
		return conds
	}
	out := make([]types.Condition, len(conds))
	for i, c := range conds {
		if c.Value.Type == types.ConditionValueReference {
			c.Value = resolveReference(c.Value, resolve)
		}
		c.Conditions = resolveConditions(c.Conditions, resolve)
		out[i] = c
	}
	return out
}

func resolveReference(ref types.ConditionValue, resolve ReferenceResolver) types.ConditionValue {
	ref.Unresolved = true
	if resolve == nil || ref.ConfigName == "" {
		return ref
	}
	root, ok := resolve(ref.ConfigName)
	if !ok {
		return ref
	}
	v, ok := root.Lookup(ref.Path)
	if !ok {
		return ref
	}
	ref.Value = v
	ref.Unresolved = false
	return ref
}

// References lists the distinct config names referenced by overrides, in first-seen order
func References(overrides []types.Override) []string {
	seen := make(map[string]struct{})
	var names []string
	var walk func([]types.Condition)
	walk = func(conds []types.Condition) {
		for _, c := range conds {
			if c.Value.Type == types.ConditionValueReference && c.Value.ConfigName != "" {
				if _, ok := seen[c.Value.ConfigName]; !ok {
					seen[c.Value.ConfigName] = struct{}{}
					names = append(names, c.Value.ConfigName)
				}
			}
			walk(c.Conditions)
		}
	}
	for _, o := range overrides {
		walk(o.Conditions)
	}
	return names
}
