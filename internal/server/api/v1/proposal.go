package v1

import (
	"context"

	"confhub/internal/server/api/response"
	"confhub/internal/server/repository"
	"confhub/internal/server/service"
	"confhub/internal/types"
	"confhub/internal/validator"

	"github.com/gin-gonic/gin"
)

// ProposalAPI represents proposal API
type ProposalAPI interface {
	RegisterProposalRoutes(r *gin.RouterGroup)
}

// _ implements ProposalAPI
var _ ProposalAPI = (*API)(nil)

// createProposalRequest proposes a change on top of BaseVersion
type createProposalRequest struct {
	BaseVersion int64 `json:"base_version" binding:"required,min=1"`
	service.ProposalParams
}

// approveRequest approves a proposal against the version the reviewer read
type approveRequest struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required,min=1"`
}

// rejectRequest closes a proposal with an optional reason
type rejectRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// listProposalsQuery filters the proposals of a config
type listProposalsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending approved rejected superseded"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// RegisterProposalRoutes registers proposal routes
func (api *API) RegisterProposalRoutes(r *gin.RouterGroup) {
	configProposals := r.Group("/projects/:project/configs/:name/proposals")
	{
		configProposals.GET("", api.listProposals)
		configProposals.POST("", api.createProposal)
	}

	proposals := r.Group("/projects/:project/proposals")
	{
		proposals.GET("/:id", api.getProposal)
		proposals.POST("/:id/approve", api.approveProposal)
		proposals.POST("/:id/reject", api.rejectProposal)
	}
}

// listProposals handles retrieving the proposals of a config
func (api *API) listProposals(c *gin.Context) {
	resp := response.New(c, api.logger)

	var query listProposalsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}
	if query.Limit == 0 {
		query.Limit = 100
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	caller := identity(c)
	cfg, err := api.service.GetConfigByName(ctx, caller, c.Param("project"), c.Param("name"))
	if err != nil {
		resp.FromError(err)
		return
	}

	proposals, err := api.service.ListProposals(ctx, caller, repository.ProposalQuery{
		ConfigID: cfg.ID,
		Status:   types.ProposalStatus(query.Status),
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		resp.FromError(err)
		return
	}
	if proposals == nil {
		proposals = []*types.Proposal{}
	}
	resp.Success(proposals)
}

// createProposal handles proposing a change to a config
func (api *API) createProposal(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	caller := identity(c)
	cfg, err := api.service.GetConfigByName(ctx, caller, c.Param("project"), c.Param("name"))
	if err != nil {
		resp.FromError(err)
		return
	}

	proposal, err := api.service.CreateProposal(ctx, caller, cfg.ID, req.BaseVersion, req.ProposalParams)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Created(proposal)
}

// getProposal handles retrieving a proposal
func (api *API) getProposal(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := withTimeout(c)
	defer cancel()

	proposal, err := api.projectProposal(ctx, c, identity(c))
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(proposal)
}

// approveProposal handles approving a proposal
func (api *API) approveProposal(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	caller := identity(c)
	proposal, err := api.projectProposal(ctx, c, caller)
	if err != nil {
		resp.FromError(err)
		return
	}

	approved, err := api.service.ApproveProposal(ctx, caller, proposal.ID, req.ExpectedVersion)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(approved)
}

// rejectProposal handles rejecting or withdrawing a proposal
func (api *API) rejectProposal(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	caller := identity(c)
	proposal, err := api.projectProposal(ctx, c, caller)
	if err != nil {
		resp.FromError(err)
		return
	}

	rejected, err := api.service.RejectProposal(ctx, caller, proposal.ID, req.Reason)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(rejected)
}

// projectProposal loads the proposal of the path and checks that it
// belongs to the project of the path
func (api *API) projectProposal(ctx context.Context, c *gin.Context, caller types.Identity) (*types.Proposal, error) {
	proposal, err := api.service.GetProposal(ctx, caller, c.Param("id"))
	if err != nil {
		return nil, err
	}
	cfg, err := api.service.GetConfig(ctx, caller, proposal.ConfigID)
	if err != nil {
		return nil, err
	}
	if cfg.ProjectID != c.Param("project") {
		return nil, types.NotFound("proposal %q not found", proposal.ID)
	}
	return proposal, nil
}
