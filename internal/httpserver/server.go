// Package httpserver hosts the hsetrack HTTP API: the echo instance, its
// middleware stack, the v2 controller, stored evidence files and /metrics.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echo_log "github.com/labstack/gommon/log"

	"github.com/sitesafe/hsetrack/internal/access"
	v2 "github.com/sitesafe/hsetrack/internal/api/v2"
	"github.com/sitesafe/hsetrack/internal/attachments"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability"
	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

// Default timeouts, used when settings leave them zero.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "110M"
)

// GetLogger returns the http module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("http")
}

// Server is the hsetrack HTTP server.
type Server struct {
	echo     *echo.Echo
	settings conf.WebServerSettings
	api      *v2.Controller
	store    *attachments.Store
	metrics  *observability.Metrics
	build    buildinfo.BuildInfo

	mu       sync.Mutex
	listener net.Listener
	errCh    chan error
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithMetrics enables request metrics and, when configured, /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAttachmentStore serves stored evidence under the store's URL prefix.
func WithAttachmentStore(store *attachments.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithBuildInfo sets the build metadata reported by health checks.
func WithBuildInfo(bi buildinfo.BuildInfo) Option {
	return func(s *Server) {
		s.build = bi
	}
}

// New builds the echo instance, installs middleware and registers routes.
func New(settings conf.WebServerSettings, svc v2.Services, gate *access.Gate, opts ...Option) (*Server, error) {
	if gate == nil {
		return nil, errors.Newf("http server requires an access gate").
			Component("httpserver").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{settings: settings, build: &buildinfo.Context{}}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger.SetLevel(echo_log.OFF)
	s.echo.Server.ReadTimeout = orDefault(settings.ReadTimeout, DefaultReadTimeout)
	s.echo.Server.WriteTimeout = orDefault(settings.WriteTimeout, DefaultWriteTimeout)
	s.echo.Server.IdleTimeout = DefaultIdleTimeout

	s.setupMiddleware()

	apiOpts := []v2.Option{
		v2.WithAuthMiddleware(gate.Authenticate),
		v2.WithBuildInfo(s.build),
	}
	if s.metrics != nil {
		apiOpts = append(apiOpts, v2.WithMetrics(s.metrics))
	}
	controller, err := v2.New(s.echo, svc, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API v2: %w", err)
	}
	s.api = controller

	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", s.Address()),
		logger.Bool("metrics", s.metrics != nil && settings.Metrics),
		logger.Bool("rate_limit", settings.RateLimit.Enabled))
	return s, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// setupMiddleware configures the echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(middleware.Recover())
	s.echo.Use(NewRequestID())
	s.echo.Use(NewRequestLogger(GetLogger()))
	s.echo.Use(NewCORS([]string{"*"}))

	limit := s.settings.BodyLimit
	if limit == "" {
		limit = DefaultBodyLimit
	}
	s.echo.Use(middleware.BodyLimit(limit))
	s.echo.Use(NewSecureHeaders())

	if s.settings.RateLimit.Enabled {
		var hm *metrics.HTTPMetrics
		if s.metrics != nil {
			hm = s.metrics.HTTP
		}
		s.echo.Use(NewRateLimiter(s.settings.RateLimit, hm))
	}
}

func (s *Server) setupRoutes() {
	if s.metrics != nil && s.settings.Metrics {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	if s.store != nil {
		prefix := s.store.URLPrefix()
		s.echo.GET(prefix+"/*", s.serveAttachment)
	}
}

// serveAttachment streams a stored evidence file. References never leave
// the upload root.
func (s *Server) serveAttachment(c echo.Context) error {
	rel := strings.TrimPrefix(c.Param("*"), "/")
	if rel == "" {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	c.Response().Header().Set("Content-Security-Policy", "sandbox")
	return s.store.FS().ServeRelativeFile(c, rel)
}

// Address returns host:port the server listens on.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
}

// Start binds the listener and serves in the background. Serve errors are
// delivered on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New(err).
			Component("httpserver").
			Category(errors.CategoryConfiguration).
			Context("address", addr).
			Build()
	}

	s.mu.Lock()
	s.listener = ln
	s.echo.Listener = ln
	s.echo.Server.Handler = s.echo
	s.errCh = make(chan error, 1)
	errCh := s.errCh
	s.mu.Unlock()

	go func() {
		err := s.echo.Server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			GetLogger().Error("HTTP server error", logger.Error(err))
			errCh <- err
		}
		close(errCh)
	}()

	GetLogger().Info("HTTP server started", logger.String("address", ln.Addr().String()))
	return errCh, nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, orDefault(s.settings.ShutdownTimeout, DefaultShutdownTimeout))
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	GetLogger().Info("HTTP server shutdown complete")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *v2.Controller {
	return s.api
}
