package api

import (
	"fmt"
	"net/http"

	"confhub/internal/metrics"
	"confhub/internal/ratelimit"
	"confhub/internal/server/api/middleware"
	av1 "confhub/internal/server/api/v1"
	"confhub/internal/server/config"
	"confhub/internal/server/replication"
	"confhub/internal/server/service"
	"confhub/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Router handles all routing logic
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger *zap.Logger
}

// NewRouter creates and configures a new router
func NewRouter(cfg *config.Config, svc *service.Service, hub *replication.Hub, logger *zap.Logger) (*Router, error) {
	// Set gin mode based on config
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if engine, ok := binding.Validator.Engine().(*playground.Validate); ok {
		if err := validator.Register(engine); err != nil {
			return nil, err
		}
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: logger,
	}

	// Initialize middleware
	if err := r.setupMiddleware(); err != nil {
		return nil, err
	}

	// Initialize API versions
	if err := r.setupAPIV1(svc, hub); err != nil {
		return nil, err
	}

	return r, nil
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupMiddleware configures all middleware
func (r *Router) setupMiddleware() error {
	m := middleware.New(r.config, r.logger)

	// Basic middleware
	r.engine.Use(m.RequestID())
	r.engine.Use(m.Logger())
	r.engine.Use(m.Recovery())

	// Security middleware
	r.engine.Use(m.Secure())

	// CORS if enabled
	if r.config.API.CORS.Enabled {
		r.engine.Use(m.Cors())
	}

	// Rate limiting if enabled
	if r.config.API.RateLimit.Enabled {
		limiter, err := ratelimit.New(r.config.API.RateLimit.Config)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		r.engine.Use(m.RateLimit(limiter))
	}

	return nil
}

// setupAPIV1 configures v1 API routes
func (r *Router) setupAPIV1(svc *service.Service, hub *replication.Hub) error {
	api, err := av1.NewAPI(svc, hub, r.config.Replication, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create API: %w", err)
	}
	m := middleware.New(r.config, r.logger)

	r.engine.GET("/health", api.HealthCheck)
	if r.config.API.Metrics.Enabled {
		r.engine.GET(r.config.API.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	// Management API, identity comes from the gateway
	v1Router := r.engine.Group("/api/v1")
	v1Router.Use(m.Identity())
	api.RegisterRoutes(v1Router)

	// SDK API, the project comes from the gateway
	sdkRouter := r.engine.Group("/sdk/v1")
	sdkRouter.Use(m.NoCache())
	api.RegisterSDKRoutes(sdkRouter)

	return nil
}
