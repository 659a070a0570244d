package v1

import (
	"confhub/internal/server/api/response"
	"confhub/internal/server/service"
	"confhub/internal/types"
	"confhub/internal/validator"

	"github.com/gin-gonic/gin"
)

// ConfigAPI represents config API
type ConfigAPI interface {
	RegisterConfigRoutes(r *gin.RouterGroup)
}

// _ implements ConfigAPI
var _ ConfigAPI = (*API)(nil)

// updateConfigRequest is a direct edit against the version the caller read
type updateConfigRequest struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required,min=1"`
	service.ConfigChanges
}

// restoreRequest restores a version on top of the version the caller read
type restoreRequest struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required,min=1"`
}

// RegisterConfigRoutes registers config routes
func (api *API) RegisterConfigRoutes(r *gin.RouterGroup) {
	configs := r.Group("/projects/:project/configs")
	{
		configs.GET("", api.listConfigs)
		configs.POST("", api.createConfig)
		configs.GET("/:name", api.getConfig)
		configs.PUT("/:name", api.updateConfig)
		configs.PATCH("/:name", api.editConfig)
		configs.GET("/:name/versions", api.getConfigVersions)
		configs.GET("/:name/versions/:version", api.getConfigVersion)
		configs.POST("/:name/versions/:version/restore", api.restoreConfigVersion)
	}
}

// listConfigs handles retrieving the configs of a project
func (api *API) listConfigs(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := withTimeout(c)
	defer cancel()

	configs, err := api.service.ListConfigs(ctx, identity(c), c.Param("project"))
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(configs)
}

// createConfig handles config creation
func (api *API) createConfig(c *gin.Context) {
	resp := response.New(c, api.logger)

	var params service.CreateConfigParams
	if err := c.ShouldBindJSON(&params); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	cfg, err := api.service.CreateConfig(ctx, identity(c), c.Param("project"), params)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Created(cfg)
}

// getConfig handles retrieving a config by name
func (api *API) getConfig(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := withTimeout(c)
	defer cancel()

	cfg, err := api.service.GetConfigByName(ctx, identity(c), c.Param("project"), c.Param("name"))
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(cfg)
}

// updateConfig handles a direct edit guarded by the expected version
func (api *API) updateConfig(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req updateConfigRequest
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

	updated, err := api.service.UpdateConfig(ctx, caller, cfg.ID, req.ExpectedVersion, req.ConfigChanges)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(updated)
}

// editConfig applies changes to whatever version is current, retrying on
// concurrent writes
func (api *API) editConfig(c *gin.Context) {
	resp := response.New(c, api.logger)

	var changes service.ConfigChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
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

	updated, err := api.service.EditConfig(ctx, caller, cfg.ID, func(*types.Config) (service.ConfigChanges, error) {
		return changes, nil
	})
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(updated)
}

// getConfigVersions handles retrieving the version history of a config
func (api *API) getConfigVersions(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := withTimeout(c)
	defer cancel()

	caller := identity(c)
	cfg, err := api.service.GetConfigByName(ctx, caller, c.Param("project"), c.Param("name"))
	if err != nil {
		resp.FromError(err)
		return
	}

	versions, err := api.service.GetConfigVersionList(ctx, caller, cfg.ID)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(versions)
}

// getConfigVersion handles retrieving a single version of a config
func (api *API) getConfigVersion(c *gin.Context) {
	resp := response.New(c, api.logger)

	version, err := int64Param(c, "version")
	if err != nil {
		resp.FromError(err)
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

	snapshot, err := api.service.GetConfigVersion(ctx, caller, cfg.ID, version)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(snapshot)
}

// restoreConfigVersion handles restoring a historical version
func (api *API) restoreConfigVersion(c *gin.Context) {
	resp := response.New(c, api.logger)

	version, err := int64Param(c, "version")
	if err != nil {
		resp.FromError(err)
		return
	}

	var req restoreRequest
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

	restored, err := api.service.RestoreVersion(ctx, caller, cfg.ID, version, req.ExpectedVersion)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(restored)
}
