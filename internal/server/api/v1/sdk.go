package v1

import (
	"errors"
	"strings"

	"confhub/internal/server/api/middleware"
	"confhub/internal/server/api/response"
	"confhub/internal/types"
	"confhub/internal/validator"
	"confhub/internal/value"

	"github.com/gin-gonic/gin"
)

// evaluateRequest asks for the value of a config for one request context
type evaluateRequest struct {
	EnvironmentID string      `json:"environment_id" binding:"required"`
	Context       value.Value `json:"context"`
}

// projectID returns the project the SDK key belongs to
func projectID(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.GetHeader(middleware.HeaderProjectID))
	if id == "" {
		return "", types.BadRequest("%s header is required", middleware.HeaderProjectID)
	}
	return id, nil
}

// evaluateConfig handles evaluating a config for a request context
func (api *API) evaluateConfig(c *gin.Context) {
	resp := response.New(c, api.logger)

	project, err := projectID(c)
	if err != nil {
		resp.FromError(err)
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(validator.Format(err))
		return
	}
	if !req.Context.IsNull() && req.Context.Kind() != value.KindObject {
		resp.BadRequest(errors.New("context must be a JSON object"))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	result, err := api.service.GetConfigValue(ctx, project, req.EnvironmentID, c.Param("name"), req.Context)
	if err != nil {
		resp.FromError(err)
		return
	}
	resp.Success(result)
}
