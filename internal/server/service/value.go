package service

import (
	"context"
	"errors"
	"strconv"

	"confhub/internal/metrics"
	"confhub/internal/override"
	"confhub/internal/types"
	"confhub/internal/value"
)

// EvaluationService represents the SDK facing value lookup interface
type EvaluationService interface {
	GetConfigValue(ctx context.Context, projectID, environmentID, name string, reqCtx value.Value) (override.Result, error)
}

// _ implements EvaluationService
var _ EvaluationService = (*Service)(nil)

// GetConfigValue returns the effective value of a config for a request
// context. References to other configs are resolved from their current
// values in the same environment.
func (s *Service) GetConfigValue(ctx context.Context, projectID, environmentID, name string, reqCtx value.Value) (override.Result, error) {
	cfg, err := s.store.Repos().Configs.FindByName(ctx, projectID, name)
	if err != nil {
		return override.Result{}, err
	}

	_, overrides := cfg.Resolved(environmentID)
	referenced := make(map[string]*types.Config)
	for _, ref := range override.References(overrides) {
		other, err := s.store.Repos().Configs.FindByName(ctx, projectID, ref)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return override.Result{}, err
		}
		referenced[ref] = other
	}

	result := s.evaluator.EvaluateConfig(cfg, environmentID, reqCtx, override.ConfigResolver(referenced, environmentID))
	metrics.Evaluations.WithLabelValues(strconv.FormatBool(result.Matched)).Inc()
	return result, nil
}
