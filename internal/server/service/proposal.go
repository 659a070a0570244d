package service

import (
	"context"
	"errors"
	"fmt"

	"confhub/internal/metrics"
	"confhub/internal/server/repository"
	"confhub/internal/types"
	"confhub/internal/value"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProposalService represents the proposal workflow interface
type ProposalService interface {
	CreateProposal(ctx context.Context, identity types.Identity, configID string, baseVersion int64, params ProposalParams) (*types.Proposal, error)
	ApproveProposal(ctx context.Context, identity types.Identity, proposalID string, expectedVersion int64) (*types.Proposal, error)
	RejectProposal(ctx context.Context, identity types.Identity, proposalID, reason string) (*types.Proposal, error)
	GetProposal(ctx context.Context, identity types.Identity, proposalID string) (*types.Proposal, error)
	ListProposals(ctx context.Context, identity types.Identity, query repository.ProposalQuery) ([]*types.Proposal, error)
}

// _ implements ProposalService
var _ ProposalService = (*Service)(nil)

// ProposalParams represents a proposed change. Fields equal to the base
// version are dropped from the stored proposal. An explicit null value is
// proposed as null, and an explicit null schema removes the schema.
type ProposalParams struct {
	Value       value.Optional    `json:"value"`
	Description *string           `json:"description,omitempty"`
	Schema      value.Optional    `json:"schema"`
	Overrides   *[]types.Override `json:"overrides,omitempty"`
	Message     string            `json:"message"`
}

// CreateProposal records a pending change against baseVersion
func (s *Service) CreateProposal(ctx context.Context, identity types.Identity, configID string, baseVersion int64, params ProposalParams) (*types.Proposal, error) {
	if err := requireWriter(identity); err != nil {
		return nil, err
	}

	cfg, err := s.store.Repos().Configs.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Version != baseVersion {
		metrics.VersionConflicts.WithLabelValues("propose").Inc()
		return nil, errConfigChanged()
	}

	proposal := &types.Proposal{
		ID:          uuid.NewString(),
		ConfigID:    cfg.ID,
		BaseVersion: baseVersion,
		Message:     params.Message,
		AuthorEmail: identity.Email,
		Status:      types.ProposalStatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if params.Value.Set && !value.Equal(params.Value.Value, cfg.Value) {
		proposed := params.Value.Value
		proposal.ProposedValue = &proposed
	}
	if params.Description != nil && *params.Description != cfg.Description {
		proposal.ProposedDescription = params.Description
	}
	if params.Schema.Set {
		schema := params.Schema.Value
		if !sameJSON(&schema, cfg.Schema) {
			proposal.ProposedSchema = &schema
		}
	}
	if params.Overrides != nil {
		overrides := normalizeContent(types.Content{Overrides: *params.Overrides}).Overrides
		if !sameJSON(overrides, cfg.Overrides) {
			proposal.ProposedOverrides = &overrides
		}
	}
	if proposal.ProposedValue == nil && proposal.ProposedDescription == nil &&
		proposal.ProposedSchema == nil && proposal.ProposedOverrides == nil {
		return nil, types.BadRequest("proposal does not change anything")
	}

	if err := s.validateContent(applyProposal(cfg.Content(), proposal)); err != nil {
		return nil, err
	}

	if err := s.store.Repos().Proposals.Create(ctx, proposal); err != nil {
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}

	s.logger.Info("Proposal created",
		zap.String("proposal_id", proposal.ID),
		zap.String("config_id", cfg.ID),
		zap.Int64("base_version", baseVersion),
		zap.String("by", identity.Email))
	return proposal, nil
}

// ApproveProposal applies a pending proposal. A proposal whose config moved
// past its base version is superseded and never merged.
func (s *Service) ApproveProposal(ctx context.Context, identity types.Identity, proposalID string, expectedVersion int64) (*types.Proposal, error) {
	proposal, err := s.pendingProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	cfg, project, err := s.loadConfig(ctx, proposal.ConfigID)
	if err != nil {
		return nil, err
	}
	if err := authorizeApprove(identity, project, cfg, proposal); err != nil {
		return nil, err
	}

	if cfg.Version != proposal.BaseVersion {
		s.supersede(ctx, proposal)
		return nil, errProposalOutdated()
	}
	if cfg.Version != expectedVersion {
		metrics.VersionConflicts.WithLabelValues(OperationApprove).Inc()
		return nil, errConfigChanged()
	}

	content := applyProposal(cfg.Content(), proposal)
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	_, err = s.commit(ctx, OperationApprove, identity, cfg, proposal.BaseVersion, content,
		func(repos repository.Repositories, version int64) error {
			proposal.Status = types.ProposalStatusApproved
			proposal.ReviewerEmail = identity.Email
			proposal.AppliedVersion = version
			proposal.ReviewedAt = &now
			return repos.Proposals.Close(ctx, proposal)
		})
	if err != nil {
		if types.IsConflict(err) {
			// The winning write superseded this proposal in its own transaction
			return nil, errProposalOutdated()
		}
		return nil, err
	}

	s.logger.Info("Proposal approved",
		zap.String("proposal_id", proposal.ID),
		zap.String("config_id", cfg.ID),
		zap.Int64("version", proposal.AppliedVersion),
		zap.String("by", identity.Email))
	return proposal, nil
}

// RejectProposal closes a pending proposal without writing a version
func (s *Service) RejectProposal(ctx context.Context, identity types.Identity, proposalID, reason string) (*types.Proposal, error) {
	proposal, err := s.pendingProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.store.Repos().Configs.FindByID(ctx, proposal.ConfigID)
	if err != nil {
		return nil, err
	}
	if err := authorizeReject(identity, cfg, proposal); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	proposal.Status = types.ProposalStatusRejected
	proposal.ReviewerEmail = identity.Email
	proposal.RejectionReason = reason
	proposal.ReviewedAt = &now
	if err := s.store.Repos().Proposals.Close(ctx, proposal); err != nil {
		return nil, err
	}

	s.logger.Info("Proposal rejected",
		zap.String("proposal_id", proposal.ID),
		zap.String("config_id", cfg.ID),
		zap.String("by", identity.Email))
	return proposal, nil
}

// GetProposal returns a proposal
func (s *Service) GetProposal(ctx context.Context, identity types.Identity, proposalID string) (*types.Proposal, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Proposals.FindByID(ctx, proposalID)
}

// ListProposals returns proposals matching query, newest first
func (s *Service) ListProposals(ctx context.Context, identity types.Identity, query repository.ProposalQuery) ([]*types.Proposal, error) {
	if err := requireRole(identity); err != nil {
		return nil, err
	}
	return s.store.Repos().Proposals.List(ctx, query)
}

func (s *Service) pendingProposal(ctx context.Context, proposalID string) (*types.Proposal, error) {
	proposal, err := s.store.Repos().Proposals.FindByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	switch {
	case proposal.Status == types.ProposalStatusSuperseded:
		return nil, errProposalOutdated()
	case proposal.IsClosed():
		return nil, types.Conflict("proposal is already %s", proposal.Status)
	}
	return proposal, nil
}

// supersede closes a drifted proposal. Losing the race against another
// reviewer is fine since the proposal is closed either way.
func (s *Service) supersede(ctx context.Context, proposal *types.Proposal) {
	now := s.now().UTC()
	proposal.Status = types.ProposalStatusSuperseded
	proposal.ReviewedAt = &now
	if err := s.store.Repos().Proposals.Close(ctx, proposal); err != nil && !errors.Is(err, types.ErrConflict) {
		s.logger.Error("Failed to supersede proposal",
			zap.Error(err),
			zap.String("proposal_id", proposal.ID))
	}
}

// applyProposal returns content with the proposed fields applied
func applyProposal(content types.Content, p *types.Proposal) types.Content {
	if p.ProposedValue != nil {
		content.Value = *p.ProposedValue
	}
	if p.ProposedDescription != nil {
		content.Description = *p.ProposedDescription
	}
	if p.ProposedSchema != nil {
		content.Schema = p.ProposedSchema
		if p.ProposedSchema.IsNull() {
			content.Schema = nil
		}
	}
	if p.ProposedOverrides != nil {
		content.Overrides = *p.ProposedOverrides
	}
	return normalizeContent(content)
}

func errProposalOutdated() error {
	return types.Conflict("proposal is out of date")
}
