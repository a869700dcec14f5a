package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/access"
	v2 "github.com/sitesafe/hsetrack/internal/api/v2"
	"github.com/sitesafe/hsetrack/internal/attachments"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/findings"
	"github.com/sitesafe/hsetrack/internal/observability"
	"github.com/sitesafe/hsetrack/internal/reporting"
	"github.com/sitesafe/hsetrack/internal/testutil"
	"github.com/sitesafe/hsetrack/internal/verification"
)

const testSecret = "httpserver-test-secret-0123456789"

type testServer struct {
	server *Server
	store  *attachments.Store
	token  string
}

func newTestServer(t *testing.T, settings conf.WebServerSettings) *testServer {
	t.Helper()

	mgr := testutil.NewSQLiteManager(t)
	repo := datastore.NewFindingRepository(mgr.DB(), nil)

	store, err := attachments.NewStore(attachments.StoreConfig{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	verifier, err := access.NewJWTVerifier(testSecret, "", 0)
	require.NoError(t, err)
	gate := access.NewGate(verifier, m.HTTP)

	agg := reporting.NewAggregator(repo, 0, m.Findings)
	s, err := New(settings, v2.Services{
		Findings:   findings.NewService(repo),
		Verifier:   verification.NewEngine(repo),
		Uploader:   attachments.NewUploader(repo, store),
		Aggregator: agg,
		DB:         mgr,
	}, gate, WithMetrics(m), WithAttachmentStore(store), WithBuildInfo(&buildinfo.Context{Version: "1.2.3"}))
	require.NoError(t, err)

	token, err := access.SignToken(testSecret, "", access.Actor{ID: "hse-1", Role: access.RoleHSE}, time.Hour)
	require.NoError(t, err)
	return &testServer{server: s, store: store, token: "Bearer " + token}
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthAndHeaders(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, conf.WebServerSettings{Metrics: true})

	rec := ts.serve(httptest.NewRequest(http.MethodGet, "/api/v2/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServerCorrelationIDFollowsRequestID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, conf.WebServerSettings{})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/findings/999", http.NoBody)
	req.Header.Set("X-Request-Id", "req-42")
	req.Header.Set("Authorization", ts.token)
	rec := ts.serve(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"correlation_id":"req-42"`)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, conf.WebServerSettings{Metrics: true})
		ts.serve(httptest.NewRequest(http.MethodGet, "/api/v2/health", http.NoBody))

		rec := ts.serve(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "http_requests_total")
	})

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, conf.WebServerSettings{Metrics: false})
		rec := ts.serve(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServerServesStoredAttachments(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, conf.WebServerSettings{})

	ref, err := ts.store.SaveFile(context.Background(), strings.NewReader("evidence"), "site photo.txt")
	require.NoError(t, err)

	rec := ts.serve(httptest.NewRequest(http.MethodGet, ref, http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evidence", rec.Body.String())
	assert.Equal(t, "sandbox", rec.Header().Get("Content-Security-Policy"))

	for _, path := range []string{"/uploads/temuan/missing.txt", "/uploads/../hse.db", "/uploads/"} {
		rec := ts.serve(httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.NotEqual(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerRateLimitsWrites(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, conf.WebServerSettings{
		Metrics:   true,
		RateLimit: conf.RateLimitSettings{Enabled: true, RequestsPerSecond: 0.001, Burst: 2},
	})

	var codes []int
	for range 4 {
		req := httptest.NewRequest(http.MethodPost, "/api/v2/findings", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", ts.token)
		codes = append(codes, ts.serve(req).Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	metricsRec := ts.serve(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Contains(t, metricsRec.Body.String(), `http_rate_limited_total{method="POST"} 2`)

	// reads are never limited
	for range 4 {
		req := httptest.NewRequest(http.MethodGet, "/api/v2/findings", http.NoBody)
		req.Header.Set("Authorization", ts.token)
		assert.Equal(t, http.StatusOK, ts.serve(req).Code)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, conf.WebServerSettings{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second})

	errCh, err := ts.server.Start()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v2/health", ts.server.Address()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ts.server.Shutdown(context.Background()))
	_, open := <-errCh
	assert.False(t, open, "serve loop should exit without error")
}

func TestNewRequiresGate(t *testing.T) {
	t.Parallel()
	_, err := New(conf.WebServerSettings{}, v2.Services{}, nil)
	require.Error(t, err)
}
