package access

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

// bearerTokenParts is the expected number of parts when splitting Authorization header.
const bearerTokenParts = 2

// Context keys set on authenticated requests.
const (
	CtxKeyActor = "auth:actor"
)

// Gate authenticates API requests with a CredentialVerifier.
type Gate struct {
	verifier CredentialVerifier
	metrics  *metrics.HTTPMetrics
}

// NewGate creates a Gate. m may be nil.
func NewGate(verifier CredentialVerifier, m *metrics.HTTPMetrics) *Gate {
	return &Gate{verifier: verifier, metrics: m}
}

// Authenticate rejects requests without a valid bearer token and stores the
// resolved Actor on the echo context.
func (g *Gate) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			g.recordAuth("missing")
			return g.unauthorized(c, "Authorization required")
		}

		parts := strings.SplitN(authHeader, " ", bearerTokenParts)
		if len(parts) != bearerTokenParts || !strings.EqualFold(parts[0], "bearer") {
			GetLogger().Warn("malformed Authorization header",
				logger.String("path", c.Request().URL.Path),
				logger.String("ip", c.RealIP()))
			g.recordAuth("malformed")
			return g.unauthorized(c, "Invalid Authorization header")
		}

		actor, err := g.verifier.Verify(c.Request().Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			GetLogger().Warn("token validation failed",
				logger.String("path", c.Request().URL.Path),
				logger.String("ip", c.RealIP()),
				logger.Error(err))
			g.recordAuth("invalid")
			c.Response().Header().Set(echo.HeaderWWWAuthenticate,
				`Bearer realm="api", error="invalid_token", error_description="Invalid or expired token"`)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
		}

		g.recordAuth(metrics.StatusSuccess)
		c.Set(CtxKeyActor, actor)
		return next(c)
	}
}

func (g *Gate) unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="api"`)
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": msg})
}

func (g *Gate) recordAuth(status string) {
	if g.metrics != nil {
		g.metrics.RecordAuthOperation("bearer", status)
	}
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(c echo.Context) (Actor, bool) {
	actor, ok := c.Get(CtxKeyActor).(Actor)
	return actor, ok
}
