package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/logger"
)

func TestRequestIDReachesRequestContext(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewRequestID())
	e.GET("/trace", func(c echo.Context) error {
		id, _ := c.Request().Context().Value(logger.TraceIDKey).(string)
		return c.String(http.StatusOK, id)
	})

	t.Run("client supplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/trace", http.NoBody)
		req.Header.Set(echo.HeaderXRequestID, "req-abc")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "req-abc", rec.Body.String())
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trace", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Body.String())
		assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), rec.Body.String())
	})
}
