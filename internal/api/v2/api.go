// Package api implements the hsetrack HTTP API v2.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/attachments"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/findings"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability"
	"github.com/sitesafe/hsetrack/internal/reporting"
	"github.com/sitesafe/hsetrack/internal/verification"
)

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the domain components the controller dispatches to.
type Services struct {
	Findings   *findings.Service
	Verifier   *verification.Engine
	Uploader   *attachments.Uploader
	Aggregator *reporting.Aggregator
	DB         Pinger
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	findings   *findings.Service
	verifier   *verification.Engine
	uploader   *attachments.Uploader
	aggregator *reporting.Aggregator
	db         Pinger

	authMiddleware echo.MiddlewareFunc
	metrics        *observability.Metrics
	buildInfo      buildinfo.BuildInfo
	startTime      time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithAuthMiddleware sets the middleware that authenticates protected routes.
func WithAuthMiddleware(mw echo.MiddlewareFunc) Option {
	return func(c *Controller) {
		c.authMiddleware = mw
	}
}

// WithMetrics enables request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithBuildInfo sets the build metadata reported by the health endpoint.
func WithBuildInfo(bi buildinfo.BuildInfo) Option {
	return func(c *Controller) {
		c.buildInfo = bi
	}
}

// GetLogger returns the api module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New creates the controller and registers its routes under /api/v2.
func New(e *echo.Echo, svc Services, opts ...Option) (*Controller, error) {
	if svc.Findings == nil || svc.Verifier == nil || svc.Uploader == nil || svc.Aggregator == nil {
		return nil, errors.Newf("api controller requires all domain services").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Controller{
		Echo:       e,
		Group:      e.Group("/api/v2"),
		findings:   svc.Findings,
		verifier:   svc.Verifier,
		uploader:   svc.Uploader,
		aggregator: svc.Aggregator,
		db:         svc.DB,
		buildInfo:  &buildinfo.Context{},
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authMiddleware == nil {
		return nil, errors.Newf("api controller requires an auth middleware").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if c.metrics != nil {
		c.Group.Use(c.MetricsMiddleware())
	}
	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	// Health check endpoint - publicly accessible
	c.Group.GET("/health", c.HealthCheck)

	c.initFindingRoutes()
	c.initVerificationRoutes()
	c.initAttachmentRoutes()
	c.initSummaryRoutes()
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	response := map[string]any{
		"status":          "healthy",
		"version":         c.buildInfo.GetVersion(),
		"build_date":      c.buildInfo.GetBuildDate(),
		"timestamp":       time.Now().Format(time.RFC3339),
		"uptime":          uptime.String(),
		"uptime_seconds":  uptime.Seconds(),
		"database_status": "connected",
	}

	code := http.StatusOK
	if c.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if err := c.db.Ping(pingCtx); err != nil {
			response["status"] = "degraded"
			response["database_status"] = "disconnected"
			response["database_error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	return ctx.JSON(code, response)
}

// MetricsMiddleware records request counts and latency per route.
func (c *Controller) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			m := c.metrics.HTTP
			m.RequestStarted()
			defer m.RequestFinished()

			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				status = he.Code
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(ctx.Request().Method, path, status, time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				m.RecordHTTPRequestError(ctx.Request().Method, path, strconv.Itoa(status))
			}
			return err
		}
	}
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString(),
	}
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)
	if rid := ctx.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		errorResp.CorrelationID = rid
	}
	if code >= http.StatusInternalServerError {
		// internal details stay in the log
		errorResp.Error = message
	}

	fields := []logger.Field{
		logger.String("correlation_id", errorResp.CorrelationID),
		logger.String("message", message),
		logger.Error(err),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if code >= http.StatusInternalServerError {
		GetLogger().Error("API error", fields...)
	} else {
		GetLogger().Debug("API error", fields...)
	}

	return ctx.JSON(code, errorResp)
}

// handleServiceError maps a domain error to its HTTP status.
func (c *Controller) handleServiceError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusForError(err))
}

func statusForError(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryAuthorization:
		return http.StatusForbidden
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryLimit:
		return http.StatusRequestEntityTooLarge
	case errors.CategoryStorage, errors.CategoryDatabase, errors.CategoryFileIO, errors.CategoryDiskUsage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireActor returns the authenticated actor, allowed to perform action.
func (c *Controller) requireActor(ctx echo.Context, action access.Action) (access.Actor, error) {
	actor, ok := access.ActorFrom(ctx)
	if !ok {
		return access.Actor{}, errors.Newf("request is not authenticated").
			Component("api").
			Category(errors.CategoryAuthorization).
			Build()
	}
	if err := access.Authorize(actor, action); err != nil {
		return access.Actor{}, err
	}
	return actor, nil
}

// parseID parses the :id path parameter.
func parseID(ctx echo.Context) (uint, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New(errors.NewStd("id must be a positive integer")).
			Component("api").
			Category(errors.CategoryValidation).
			Context("id", raw).
			Build()
	}
	return uint(id), nil
}
