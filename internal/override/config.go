package override

import (
	"confhub/internal/types"
	"confhub/internal/value"
)

// ConfigResolver resolves references against the environment values of
// the given configs, keyed by config name.
func ConfigResolver(configs map[string]*types.Config, environmentID string) ReferenceResolver {
	return func(name string) (value.Value, bool) {
		cfg, ok := configs[name]
		if !ok {
			return value.Null(), false
		}
		v, _ := cfg.Resolved(environmentID)
		return v, true
	}
}

// EvaluateConfig evaluates cfg for environmentID and ctx. References are
// resolved with resolve before evaluation.
func EvaluateConfig(cfg *types.Config, environmentID string, ctx value.Value, resolve ReferenceResolver) Result {
	return defaultEvaluator.EvaluateConfig(cfg, environmentID, ctx, resolve)
}

// EvaluateConfig evaluates cfg for environmentID and ctx
func (e *Evaluator) EvaluateConfig(cfg *types.Config, environmentID string, ctx value.Value, resolve ReferenceResolver) Result {
	base, overrides := cfg.Resolved(environmentID)
	return e.EvaluateDetailed(base, Resolve(overrides, resolve), ctx)
}
