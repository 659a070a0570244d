package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"confhub/internal/ratelimit"
	"confhub/internal/server/api/middleware"
	"confhub/internal/server/api/response"
	"confhub/internal/server/config"
	"confhub/internal/server/replication"
	"confhub/internal/server/service"
	"confhub/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestTimeout bounds every non streaming request
const requestTimeout = 30 * time.Second

// API represents the API
type API struct {
	service    *service.Service
	hub        *replication.Hub
	handshakes *ratelimit.Limiter
	config     config.ReplicationConfig
	logger     *zap.Logger
}

// NewAPI creates new API
func NewAPI(svc *service.Service, hub *replication.Hub, cfg config.ReplicationConfig, logger *zap.Logger) (*API, error) {
	handshakes, err := ratelimit.New(cfg.HandshakeLimit)
	if err != nil {
		return nil, err
	}
	return &API{
		service:    svc,
		hub:        hub,
		handshakes: handshakes,
		config:     cfg,
		logger:     logger,
	}, nil
}

// RegisterRoutes registers the management API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	api.RegisterProjectRoutes(r)
	api.RegisterConfigRoutes(r)
	api.RegisterProposalRoutes(r)
}

// RegisterSDKRoutes registers the routes used by client SDKs
func (api *API) RegisterSDKRoutes(r *gin.RouterGroup) {
	r.POST("/configs/:name/evaluate", api.evaluateConfig)
	r.GET("/replication", api.openReplication)
}

// HealthCheck handles health check requests
func (api *API) HealthCheck(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := api.service.HealthCheck(ctx)
	if !status.Healthy {
		resp.Error(http.StatusServiceUnavailable, errors.New("service unhealthy"))
		return
	}

	resp.Success(status)
}

// withTimeout returns the request context bounded by requestTimeout
func withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// identity returns the caller identity of the request
func identity(c *gin.Context) types.Identity {
	return middleware.GetIdentity(c)
}

// int64Param parses a positive integer path parameter
func int64Param(c *gin.Context, name string) (int64, error) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || n <= 0 {
		return 0, types.BadRequest("%s must be a positive integer", name)
	}
	return n, nil
}
