package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

func serveThroughGate(t *testing.T, g *Gate, authHeader string) (*httptest.ResponseRecorder, *Actor) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/findings", http.NoBody)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Actor
	handler := g.Authenticate(func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		seen = &actor
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, handler(c))
	return rec, seen
}

func TestGateAuthenticate(t *testing.T) {
	t.Parallel()

	v, err := NewJWTVerifier(testSecret, "", 0)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m, err := metrics.NewHTTPMetrics(reg)
	require.NoError(t, err)
	g := NewGate(v, m)

	token, err := SignToken(testSecret, "", Actor{ID: "u9", Role: RoleManagement}, time.Hour)
	require.NoError(t, err)

	t.Run("valid bearer", func(t *testing.T) {
		rec, actor := serveThroughGate(t, g, "Bearer "+token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, actor)
		assert.Equal(t, Actor{ID: "u9", Role: RoleManagement}, *actor)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		rec, actor := serveThroughGate(t, g, "bearer "+token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotNil(t, actor)
	})

	t.Run("missing header", func(t *testing.T) {
		rec, actor := serveThroughGate(t, g, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, actor)
		assert.Equal(t, `Bearer realm="api"`, rec.Header().Get(echo.HeaderWWWAuthenticate))
	})

	t.Run("basic scheme", func(t *testing.T) {
		rec, actor := serveThroughGate(t, g, "Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, actor)
	})

	t.Run("bad token", func(t *testing.T) {
		rec, actor := serveThroughGate(t, g, "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, actor)
		assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), "invalid_token")
	})
}

func TestGateRecordsAuthMetrics(t *testing.T) {
	t.Parallel()

	v, err := NewJWTVerifier(testSecret, "", 0)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m, err := metrics.NewHTTPMetrics(reg)
	require.NoError(t, err)
	g := NewGate(v, m)

	serveThroughGate(t, g, "")
	serveThroughGate(t, g, "Bearer nope")

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "http_auth_operations_total"))
}
