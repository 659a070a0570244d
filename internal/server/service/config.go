package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"confhub/internal/metrics"
	"confhub/internal/override"
	"confhub/internal/retry"
	"confhub/internal/server/repository"
	"confhub/internal/types"
	"confhub/internal/validator"
	"confhub/internal/value"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config operations recorded in version metrics and change events
const (
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationApprove = "approve"
	OperationRestore = "restore"
)

// ConfigService represents the versioned config store interface
type ConfigService interface {
	CreateConfig(ctx context.Context, identity types.Identity, projectID string, params CreateConfigParams) (*types.Config, error)
	UpdateConfig(ctx context.Context, identity types.Identity, configID string, expectedVersion int64, changes ConfigChanges) (*types.Config, error)
	EditConfig(ctx context.Context, identity types.Identity, configID string, mutate MutateFunc) (*types.Config, error)
	RestoreVersion(ctx context.Context, identity types.Identity, configID string, version, expectedVersion int64) (*types.Config, error)
	GetConfig(ctx context.Context, identity types.Identity, configID string) (*types.Config, error)
	GetConfigByName(ctx context.Context, identity types.Identity, projectID, name string) (*types.Config, error)
	ListConfigs(ctx context.Context, identity types.Identity, projectID string) ([]*types.Config, error)
	GetConfigVersionList(ctx context.Context, identity types.Identity, configID string) ([]types.ConfigVersionInfo, error)
	GetConfigVersion(ctx context.Context, identity types.Identity, configID string, version int64) (*types.ConfigVersion, error)
}

// _ implements ConfigService
var _ ConfigService = (*Service)(nil)

// DefaultVariant represents the default value, schema and overrides of a config
type DefaultVariant struct {
	Value     value.Value      `json:"value"`
	Schema    *value.Value     `json:"schema,omitempty"`
	Overrides []types.Override `json:"overrides"`
}

// CreateConfigParams represents the parameters of a new config
type CreateConfigParams struct {
	Name        string          `json:"name" binding:"required,configname"`
	Description string          `json:"description"`
	Default     DefaultVariant  `json:"default"`
	Variants    []types.Variant `json:"variants"`
	Maintainers []string        `json:"maintainers" binding:"omitempty,dive,email"`
	Editors     []string        `json:"editors" binding:"omitempty,dive,email"`
}

// ConfigChanges represents a partial update of a config. Nil fields are kept.
type ConfigChanges struct {
	Description *string          `json:"description,omitempty"`
	Default     *DefaultVariant  `json:"default,omitempty"`
	Variants    *[]types.Variant `json:"variants,omitempty"`
	Maintainers *[]string        `json:"maintainers,omitempty"`
	Editors     *[]string        `json:"editors,omitempty"`
}

// MutateFunc derives changes from the latest config. It may be called
// several times when concurrent edits force a retry.
type MutateFunc func(current *types.Config) (ConfigChanges, error)

// Apply returns content with the changes applied
func (c ConfigChanges) Apply(content types.Content) types.Content {
	if c.Description != nil {
		content.Description = *c.Description
	}
	if c.Default != nil {
		content.Value = c.Default.Value
		content.Schema = c.Default.Schema
		content.Overrides = c.Default.Overrides
	}
	if c.Variants != nil {
		content.Variants = *c.Variants
	}
	if c.Maintainers != nil {
		content.Maintainers = *c.Maintainers
	}
	if c.Editors != nil {
		content.Editors = *c.Editors
	}
	return content
}

// CreateConfig creates a config at version 1 together with its first version row
func (s *Service) CreateConfig(ctx context.Context, identity types.Identity, projectID string, params CreateConfigParams) (*types.Config, error) {
	if err := requireWriter(identity); err != nil {
		return nil, err
	}
	if !validator.ValidConfigName(params.Name) {
		return nil, types.BadRequest("invalid config name %q", params.Name)
	}
	if _, err := s.store.Repos().Projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	}

	maintainers := params.Maintainers
	if len(maintainers) == 0 {
		maintainers = []string{identity.Email}
	}

	now := s.now().UTC()
	cfg := &types.Config{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      params.Name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cfg.ApplyContent(normalizeContent(types.Content{
		Description: params.Description,
		Value:       params.Default.Value,
		Schema:      params.Default.Schema,
		Overrides:   params.Default.Overrides,
		Variants:    params.Variants,
		Maintainers: maintainers,
		Editors:     params.Editors,
	}))
	if err := s.validateContent(cfg.Content()); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Configs.Create(ctx, cfg); err != nil {
			return err
		}
		return repos.Configs.CreateVersion(ctx, &types.ConfigVersion{
			ConfigID:    cfg.ID,
			Version:     cfg.Version,
			Content:     cfg.Content(),
			AuthorEmail: identity.Email,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	s.logger.Info("Config created",
		zap.String("config_id", cfg.ID),
		zap.String("project_id", projectID),
		zap.String("name", cfg.Name),
		zap.String("by", identity.Email))
	s.publish(OperationCreate, identity, cfg)
	return cfg, nil
}

// UpdateConfig applies changes when the config is still at expectedVersion
// and returns the config at the new version
func (s *Service) UpdateConfig(ctx context.Context, identity types.Identity, configID string, expectedVersion int64, changes ConfigChanges) (*types.Config, error) {
	cfg, project, err := s.loadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	current := cfg.Content()
	next := normalizeContent(changes.Apply(current))
	contentChanged, membersChanged := diffContent(current, next)
	if err := authorizeEdit(identity, project, cfg, contentChanged, membersChanged); err != nil {
		return nil, err
	}
	if cfg.Version != expectedVersion {
		metrics.VersionConflicts.WithLabelValues(OperationUpdate).Inc()
		return nil, errConfigChanged()
	}
	if !contentChanged && !membersChanged {
		return nil, types.BadRequest("update does not change anything")
	}
	if err := s.validateContent(next); err != nil {
		return nil, err
	}

	return s.commit(ctx, OperationUpdate, identity, cfg, expectedVersion, next, nil)
}

// EditConfig re-reads the config and re-applies mutate until the update
// commits without a version conflict or the retry budget is spent
func (s *Service) EditConfig(ctx context.Context, identity types.Identity, configID string, mutate MutateFunc) (*types.Config, error) {
	var updated *types.Config
	err := retry.Execute(ctx, &s.config.Retry, func(ctx context.Context) error {
		current, err := s.store.Repos().Configs.FindByID(ctx, configID)
		if err != nil {
			return err
		}
		changes, err := mutate(current)
		if err != nil {
			return err
		}
		updated, err = s.UpdateConfig(ctx, identity, configID, current.Version, changes)
		return err
	}, types.IsConflict)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RestoreVersion writes the content of a historical version as a new version
func (s *Service) RestoreVersion(ctx context.Context, identity types.Identity, configID string, version, expectedVersion int64) (*types.Config, error) {
	cfg, project, err := s.loadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.store.Repos().Configs.FindVersion(ctx, configID, version)
	if err != nil {
		return nil, err
	}

	next := normalizeContent(snapshot.Content)
	_, membersChanged := diffContent(cfg.Content(), next)
	if err := authorizeEdit(identity, project, cfg, true, membersChanged); err != nil {
		return nil, err
	}
	if cfg.Version != expectedVersion {
		metrics.VersionConflicts.WithLabelValues(OperationRestore).Inc()
		return nil, errConfigChanged()
	}

	restored, err := s.commit(ctx, OperationRestore, identity, cfg, expectedVersion, next, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Config version restored",
		zap.String("config_id", configID),
		zap.Int64("restored_version", version),
		zap.Int64("new_version", restored.Version))
	return restored, nil
}

// GetConfig returns a config by ID
func (s *Service) GetConfig(ctx context.Context, identity types.Identity, configID string) (*types.Config, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Configs.FindByID(ctx, configID)
}

// GetConfigByName returns a config by project and name
func (s *Service) GetConfigByName(ctx context.Context, identity types.Identity, projectID, name string) (*types.Config, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Configs.FindByName(ctx, projectID, name)
}

// ListConfigs returns the configs of a project
func (s *Service) ListConfigs(ctx context.Context, identity types.Identity, projectID string) ([]*types.Config, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	if _, err := s.store.Repos().Projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	configs, err := s.store.Repos().Configs.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	if configs == nil {
		configs = []*types.Config{}
	}
	return configs, nil
}

// GetConfigVersionList returns the version history of a config, newest first
func (s *Service) GetConfigVersionList(ctx context.Context, identity types.Identity, configID string) ([]types.ConfigVersionInfo, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	if _, err := s.store.Repos().Configs.FindByID(ctx, configID); err != nil {
		return nil, err
	}
	return s.store.Repos().Configs.ListVersions(ctx, configID)
}

// GetConfigVersion returns a single historical version
func (s *Service) GetConfigVersion(ctx context.Context, identity types.Identity, configID string, version int64) (*types.ConfigVersion, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Configs.FindVersion(ctx, configID, version)
}

// commit writes content as version expectedVersion+1. The version compare
// and swap is the first statement of the transaction. afterWrite runs in the
// same transaction before stale proposals are superseded.
func (s *Service) commit(ctx context.Context, operation string, identity types.Identity, cfg *types.Config, expectedVersion int64,
	content types.Content, afterWrite func(repos repository.Repositories, version int64) error) (*types.Config, error) {
	now := s.now().UTC()
	next := *cfg
	next.ApplyContent(content)
	next.Version = expectedVersion + 1
	next.UpdatedAt = now

	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Configs.CompareAndSwapVersion(ctx, cfg.ID, expectedVersion, now); err != nil {
			return err
		}
		if err := repos.Configs.UpdateContent(ctx, &next); err != nil {
			return err
		}
		if err := repos.Configs.CreateVersion(ctx, &types.ConfigVersion{
			ConfigID:    cfg.ID,
			Version:     next.Version,
			Content:     content,
			AuthorEmail: identity.Email,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if afterWrite != nil {
			if err := afterWrite(repos, next.Version); err != nil {
				return err
			}
		}
		_, err := repos.Proposals.SupersedeStale(ctx, cfg.ID, next.Version, now)
		return err
	})
	if err != nil {
		if types.IsConflict(err) {
			metrics.VersionConflicts.WithLabelValues(operation).Inc()
			return nil, err
		}
		return nil, fmt.Errorf("failed to commit config %s: %w", cfg.Name, err)
	}

	s.logger.Info("Config version committed",
		zap.String("config_id", cfg.ID),
		zap.String("name", cfg.Name),
		zap.String("operation", operation),
		zap.Int64("version", next.Version),
		zap.String("by", identity.Email))
	s.publish(operation, identity, &next)
	return &next, nil
}

// loadConfig loads a config and its project
func (s *Service) loadConfig(ctx context.Context, configID string) (*types.Config, *types.Project, error) {
	cfg, err := s.store.Repos().Configs.FindByID(ctx, configID)
	if err != nil {
		return nil, nil, err
	}
	project, err := s.store.Repos().Projects.FindByID(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return cfg, project, nil
}

// validateContent checks names, overrides and every value against its schema
func (s *Service) validateContent(content types.Content) error {
	for _, email := range append(append([]string{}, content.Maintainers...), content.Editors...) {
		if !strings.Contains(email, "@") {
			return types.BadRequest("invalid member email %q", email)
		}
	}

	if err := override.Validate(content.Overrides); err != nil {
		return err
	}
	if err := s.schemas.validateVariant(content.Schema, content.Value, content.Overrides, "default"); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(content.Variants))
	for i := range content.Variants {
		variant := &content.Variants[i]
		if variant.EnvironmentID == "" {
			return types.BadRequest("variant %d has no environment", i)
		}
		if _, dup := seen[variant.EnvironmentID]; dup {
			return types.BadRequest("duplicate variant for environment %q", variant.EnvironmentID)
		}
		seen[variant.EnvironmentID] = struct{}{}

		if err := override.Validate(variant.Overrides); err != nil {
			return err
		}
		schema := (&types.Config{Schema: content.Schema}).EffectiveSchema(variant)
		if err := s.schemas.validateVariant(schema, variant.Value, variant.Overrides, "environment "+variant.EnvironmentID); err != nil {
			return err
		}
	}
	return nil
}

// normalizeContent replaces nil lists so stored and compared content is stable
func normalizeContent(c types.Content) types.Content {
	if c.Overrides == nil {
		c.Overrides = []types.Override{}
	}
	if c.Variants == nil {
		c.Variants = []types.Variant{}
	}
	variants := make([]types.Variant, len(c.Variants))
	for i, v := range c.Variants {
		if v.Overrides == nil {
			v.Overrides = []types.Override{}
		}
		variants[i] = v
	}
	c.Variants = variants
	if c.Maintainers == nil {
		c.Maintainers = []string{}
	}
	if c.Editors == nil {
		c.Editors = []string{}
	}
	return c
}

// diffContent reports whether the editable content and the member lists differ
func diffContent(a, b types.Content) (contentChanged, membersChanged bool) {
	membersChanged = !sameJSON(a.Maintainers, b.Maintainers) || !sameJSON(a.Editors, b.Editors)

	a.Maintainers, a.Editors = nil, nil
	b.Maintainers, b.Editors = nil, nil
	contentChanged = !sameJSON(a, b)
	return contentChanged, membersChanged
}

// sameJSON compares two values by their JSON encoding, which keeps object
// member order and therefore matches what is stored
func sameJSON(a, b any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(da) == string(db)
}

func errConfigChanged() error {
	return types.Conflict("config was changed by someone else, reload and retry")
}
