package v1

import (
	"confhub/internal/server/api/response"
	"confhub/internal/server/service"
	"confhub/internal/validator"

	"github.com/gin-gonic/gin"
)

// ProjectAPI represents project API
type ProjectAPI interface {
	RegisterProjectRoutes(r *gin.RouterGroup)
}

// _ implements ProjectAPI
var _ ProjectAPI = (*API)(nil)

// RegisterProjectRoutes registers project routes
func (api *API) RegisterProjectRoutes(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.GET("", api.listProjects)
		projects.POST("", api.createProject)
		projects.GET("/:project", api.getProject)
		projects.PUT("/:project", api.updateProjectPolicy)
	}
}

// createProject handles project creation
func (api *API) createProject(c *gin.Context) {
	resp := response.New(c, api.logger)

	var params service.CreateProjectParams
	if err := c.ShouldBindJSON(&params); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	project, err := api.service.CreateProject(ctx, identity(c), params)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Created(project)
}

// listProjects handles retrieving all projects
func (api *API) listProjects(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := withTimeout(c)
	defer cancel()

	projects, err := api.service.ListProjects(ctx, identity(c))
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(projects)
}

// getProject handles retrieving a project
func (api *API) getProject(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := withTimeout(c)
	defer cancel()

	project, err := api.service.GetProject(ctx, identity(c), c.Param("project"))
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(project)
}

// updateProjectPolicy handles review policy updates
func (api *API) updateProjectPolicy(c *gin.Context) {
	resp := response.New(c, api.logger)

	var policy service.ProjectPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	project, err := api.service.UpdateProjectPolicy(ctx, identity(c), c.Param("project"), policy)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(project)
}
