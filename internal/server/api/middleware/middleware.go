package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"confhub/internal/metrics"
	"confhub/internal/ratelimit"
	"confhub/internal/server/api/response"
	"confhub/internal/server/config"
	"confhub/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Headers set by the authenticating gateway in front of the server
const (
	HeaderIdentityEmail = "X-Identity-Email"
	HeaderIdentityRole  = "X-Identity-Role"
	HeaderProjectID     = "X-Project-ID"
)

const identityKey = "identity"

// Middleware represents middleware manager
type Middleware struct {
	logger *zap.Logger
	config *config.Config
}

// New creates a new middleware manager
func New(cfg *config.Config, logger *zap.Logger) *Middleware {
	return &Middleware{
		logger: logger,
		config: cfg,
	}
}

// RequestID adds request ID to context
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Logger logs request details and records request metrics
func (m *Middleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		requestID := c.GetString("request_id")

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		// Route templates keep the label cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())

		m.logger.Info("request completed",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("identity", c.GetHeader(HeaderIdentityEmail)),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("error", errorMessage))
	}
}

// Recovery recovers from panics
func (m *Middleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// Get stack trace
				buf := make([]byte, 2048)
				n := runtime.Stack(buf, false)
				stackTrace := string(buf[:n])

				var errMsg string
				switch e := err.(type) {
				case error:
					errMsg = e.Error()
				case string:
					errMsg = e
				default:
					errMsg = fmt.Sprintf("%v", e)
				}

				m.logger.Error("panic recovered",
					zap.String("error", errMsg),
					zap.String("stack", stackTrace))

				response.New(c, m.logger).InternalError(errors.New("internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Cors handles CORS
func (m *Middleware) Cors() gin.HandlerFunc {
	cors := m.config.API.CORS
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", strings.Join(cors.AllowedOrigins, ","))
		c.Header("Access-Control-Allow-Methods", strings.Join(cors.AllowedMethods, ","))
		c.Header("Access-Control-Allow-Headers", strings.Join(cors.AllowedHeaders, ","))
		c.Header("Access-Control-Max-Age", strconv.Itoa(cors.MaxAge))
		if cors.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit throttles requests per client IP
func (m *Middleware) RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	maxRequests := strconv.Itoa(m.config.API.RateLimit.MaxRequests)
	return func(c *gin.Context) {
		res := limiter.Limit(c.ClientIP())

		c.Header("X-RateLimit-Limit", maxRequests)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			metrics.RateLimitRejections.WithLabelValues("api").Inc()
			retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.New(c, m.logger).TooManyRequests(errors.New("rate limit exceeded"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Identity reads the caller identity set by the gateway. Requests without
// one continue anonymously and are refused by the service where a role is
// required.
func (m *Middleware) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := types.Identity{
			Email: strings.TrimSpace(c.GetHeader(HeaderIdentityEmail)),
			Role:  types.ProjectRole(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderIdentityRole)))),
		}
		if identity.Role != "" && !identity.Role.Valid() {
			response.New(c, m.logger).BadRequest(fmt.Errorf("unknown role %q", identity.Role))
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the identity stored by the Identity middleware
func GetIdentity(c *gin.Context) types.Identity {
	identity, _ := c.Get(identityKey)
	id, _ := identity.(types.Identity)
	return id
}

// NoCache adds no-cache headers
func (m *Middleware) NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}

// Secure adds security headers
func (m *Middleware) Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		if m.config.Server.TLS.Enabled {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
