package service

import (
	"context"
	"time"

	"confhub/internal/events"
	"confhub/internal/metrics"
	"confhub/internal/override"
	"confhub/internal/server/config"
	"confhub/internal/server/repository"
	"confhub/internal/types"
	"confhub/internal/version"

	"go.uber.org/zap"
)

// Service implements the versioned config store, the proposal workflow and
// config value evaluation on top of a transactional repository store.
type Service struct {
	config    *config.Config
	store     repository.Store
	bus       events.Bus
	schemas   *schemaValidator
	evaluator *override.Evaluator
	logger    *zap.Logger

	now       func() time.Time
	startTime time.Time
}

// NewService creates new service instance
func NewService(cfg *config.Config, store repository.Store, bus events.Bus, logger *zap.Logger) (*Service, error) {
	schemas, err := newSchemaValidator(defaultSchemaCacheSize)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:    cfg,
		store:     store,
		bus:       bus,
		schemas:   schemas,
		evaluator: override.New(),
		logger:    logger,
		now:       time.Now,
		startTime: time.Now(),
	}, nil
}

// Evaluator returns the evaluator used for config values
func (s *Service) Evaluator() *override.Evaluator {
	return s.evaluator
}

// Stop stops the service and cleanup resources
func (s *Service) Stop() error {
	return s.store.Close()
}

// HealthStatus health check
type HealthStatus struct {
	Healthy   bool           `json:"healthy"`
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Details   []HealthDetail `json:"details,omitempty"`
}

// HealthDetail represents a health detail
type HealthDetail struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck performs a health check
func (s *Service) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Healthy:   true,
		Version:   version.GetInfo().Version,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	// Check database
	if err := s.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Details = append(status.Details, HealthDetail{
			Component: "database",
			Status:    "unhealthy",
			Error:     err.Error(),
		})
	}

	return status
}

// publish announces a committed change. Delivery failures never fail the
// mutation that has already been committed.
func (s *Service) publish(operation string, identity types.Identity, cfg *types.Config) {
	metrics.ConfigMutations.WithLabelValues(operation).Inc()
	if s.bus == nil {
		return
	}

	event := events.ConfigChanged{
		ProjectID:   cfg.ProjectID,
		ConfigID:    cfg.ID,
		Name:        cfg.Name,
		Version:     cfg.Version,
		Config:      cfg,
		AuthorEmail: identity.Email,
		Operation:   operation,
		At:          cfg.UpdatedAt,
	}
	if err := s.bus.Publish(context.Background(), event); err != nil {
		s.logger.Error("Failed to publish config change",
			zap.Error(err),
			zap.String("config", cfg.Name),
			zap.Int64("version", cfg.Version))
	}
}
