package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/errors"
)

// Tests in this file share the global Sentry hub and must not run in parallel.

func TestStorageErrorsAreReported(t *testing.T) {
	transport := NewMockTransport()
	cleanup, err := InitForTesting(transport)
	require.NoError(t, err)
	defer cleanup()

	_ = errors.New(errors.NewStd("disk I/O error")).
		Component("datastore").
		Category(errors.CategoryStorage).
		Context("operation", "decide_finding").
		Build()
	Flush(time.Second)

	events := transport.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "datastore", events[0].Tags["component"])
	assert.Equal(t, "storage", events[0].Tags["category"])
	assert.Equal(t, "Datastore Storage Error Decide Finding", events[0].Tags["error_title"])
}

func TestCallerErrorsAreNotReported(t *testing.T) {
	transport := NewMockTransport()
	cleanup, err := InitForTesting(transport)
	require.NoError(t, err)
	defer cleanup()

	_ = errors.ValidationError("location is required")
	_ = errors.Newf("finding 7 not found").Category(errors.CategoryNotFound).Build()
	_ = errors.Newf("role hse may not verify").Category(errors.CategoryAuthorization).Build()
	_ = errors.Newf("already decided").Category(errors.CategoryConflict).Build()
	Flush(time.Second)

	assert.Empty(t, transport.GetEvents())
}

func TestInitDisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(&conf.SentrySettings{Enabled: false}, "dev"))
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		ServerName: "host-01",
		User:       sentry.User{ID: "u1", Email: "a@example.com"},
		Contexts:   map[string]sentry.Context{"os": {"name": "linux"}, "app": {"x": 1}},
		Extra:      map[string]any{"component": "datastore", "secret": "x"},
		Tags:       map[string]string{"hostname": "host-01", "category": "storage"},
	}

	out := applyPrivacyFilters(event)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Contexts, "os")
	assert.Contains(t, out.Contexts, "app")
	assert.Equal(t, map[string]any{"component": "datastore"}, out.Extra)
	assert.Equal(t, map[string]string{"category": "storage"}, out.Tags)
}
