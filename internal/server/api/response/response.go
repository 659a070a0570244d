package response

import (
	"context"
	"errors"
	"net/http"
	"time"

	"confhub/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response represents standard API response
type Response struct {
	Code      int         `json:"code"`            // HTTP status code
	Message   string      `json:"message"`         // Response message
	Data      interface{} `json:"data,omitempty"`  // Response data
	Error     string      `json:"error,omitempty"` // Error message if any
	RequestID string      `json:"request_id"`      // Request ID for tracking
	Timestamp time.Time   `json:"timestamp"`       // Response timestamp
}

// Handler provides methods for standard API responses
type Handler struct {
	ctx    *gin.Context
	logger *zap.Logger
}

// New creates new response handler
func New(c *gin.Context, logger *zap.Logger) *Handler {
	return &Handler{
		ctx:    c,
		logger: logger,
	}
}

// Success sends success response
func (h *Handler) Success(data interface{}) {
	h.ctx.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// Created sends created response
func (h *Handler) Created(data interface{}) {
	h.ctx.JSON(http.StatusCreated, Response{
		Code:      http.StatusCreated,
		Message:   "created",
		Data:      data,
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// Error sends an error response
func (h *Handler) Error(status int, err error) {
	h.ctx.JSON(status, Response{
		Code:      status,
		Message:   "error",
		Error:     err.Error(),
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// BadRequest sends bad request error response
func (h *Handler) BadRequest(err error) {
	h.Error(http.StatusBadRequest, err)
}

// NotFound sends not found error response
func (h *Handler) NotFound(err error) {
	h.Error(http.StatusNotFound, err)
}

// Forbidden sends forbidden error response
func (h *Handler) Forbidden(err error) {
	h.Error(http.StatusForbidden, err)
}

// TooManyRequests sends rate limit error response
func (h *Handler) TooManyRequests(err error) {
	h.Error(http.StatusTooManyRequests, err)
}

// InternalError sends an internal server error response
func (h *Handler) InternalError(err error) {
	h.Error(http.StatusInternalServerError, err)
}

// FromError maps a service error to its status code. Errors outside the
// taxonomy are logged and reported as internal errors without details.
func (h *Handler) FromError(err error) {
	var typed *types.Error
	switch {
	case errors.As(err, &typed):
		h.Error(StatusOf(err), errors.New(typed.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		h.Error(http.StatusGatewayTimeout, errors.New("request timeout"))
	case errors.Is(err, context.Canceled):
		h.logger.Debug("Client canceled request",
			zap.String("request_id", h.ctx.GetString("request_id")))
	default:
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("request_id", h.ctx.GetString("request_id")),
			zap.String("path", h.ctx.FullPath()))
		h.InternalError(errors.New("internal server error"))
	}
}

// StatusOf returns the HTTP status for an error kind
func StatusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
