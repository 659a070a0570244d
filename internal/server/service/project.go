package service

import (
	"context"
	"fmt"

	"confhub/internal/types"
	"confhub/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProjectService represents project management service interface
type ProjectService interface {
	CreateProject(ctx context.Context, identity types.Identity, params CreateProjectParams) (*types.Project, error)
	GetProject(ctx context.Context, identity types.Identity, projectID string) (*types.Project, error)
	ListProjects(ctx context.Context, identity types.Identity) ([]*types.Project, error)
	UpdateProjectPolicy(ctx context.Context, identity types.Identity, projectID string, policy ProjectPolicy) (*types.Project, error)
}

// _ implements ProjectService
var _ ProjectService = (*Service)(nil)

// CreateProjectParams represents the parameters of a new project
type CreateProjectParams struct {
	Name               string `json:"name" binding:"required,configname"`
	RequireProposals   bool   `json:"require_proposals"`
	AllowSelfApprovals bool   `json:"allow_self_approvals"`
}

// ProjectPolicy represents a partial update of a project's review policy
type ProjectPolicy struct {
	RequireProposals   *bool `json:"require_proposals"`
	AllowSelfApprovals *bool `json:"allow_self_approvals"`
}

// CreateProject creates a new project
func (s *Service) CreateProject(ctx context.Context, identity types.Identity, params CreateProjectParams) (*types.Project, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	if !validator.ValidConfigName(params.Name) {
		return nil, types.BadRequest("invalid project name %q", params.Name)
	}

	now := s.now().UTC()
	project := &types.Project{
		ID:                 uuid.NewString(),
		Name:               params.Name,
		RequireProposals:   params.RequireProposals,
		AllowSelfApprovals: params.AllowSelfApprovals,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Repos().Projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Project created",
		zap.String("project_id", project.ID),
		zap.String("name", project.Name),
		zap.String("by", identity.Email))
	return project, nil
}

// GetProject returns a project
func (s *Service) GetProject(ctx context.Context, identity types.Identity, projectID string) (*types.Project, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Projects.FindByID(ctx, projectID)
}

// ListProjects returns all projects
func (s *Service) ListProjects(ctx context.Context, identity types.Identity) ([]*types.Project, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Projects.List(ctx)
}

// UpdateProjectPolicy updates the review policy of a project
func (s *Service) UpdateProjectPolicy(ctx context.Context, identity types.Identity, projectID string, policy ProjectPolicy) (*types.Project, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	project, err := s.store.Repos().Projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if policy.RequireProposals != nil {
		project.RequireProposals = *policy.RequireProposals
	}
	if policy.AllowSelfApprovals != nil {
		project.AllowSelfApprovals = *policy.AllowSelfApprovals
	}
	project.UpdatedAt = s.now().UTC()

	if err := s.store.Repos().Projects.UpdatePolicy(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	s.logger.Info("Project policy updated",
		zap.String("project_id", project.ID),
		zap.Bool("require_proposals", project.RequireProposals),
		zap.Bool("allow_self_approvals", project.AllowSelfApprovals),
		zap.String("by", identity.Email))
	return project, nil
}
