package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewMetrics must be safe to call concurrently since every call owns its
// registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)

	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				errs <- err
				return
			}
			if m.Datastore == nil || m.Findings == nil || m.HTTP == nil {
				errs <- assert.AnError
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("NewMetrics failed: %v", err)
	}
}

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Findings.RecordVerificationDecision("verified")
	m.Datastore.RecordDbOperation("finding_decide", "findings", "conflict")
	m.HTTP.RecordHTTPRequest(http.MethodPost, "/api/v2/findings/:id/verify", http.StatusConflict, 0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `hse_verification_decisions_total{outcome="verified"} 1`), body)
	assert.Contains(t, body, `datastore_db_operations_total{operation="finding_decide",status="conflict",table="findings"} 1`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/v2/findings/:id/verify",status_code="409"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
