package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatastoreTableRecorder(t *testing.T) {
	t.Parallel()

	m, err := NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	rec := m.ForTable("findings")
	rec.RecordOperation(OpFindingDecide, StatusSuccess)
	rec.RecordOperation(OpFindingDecide, StatusConflict)
	rec.RecordOperation(OpFindingDecide, StatusConflict)
	rec.RecordError(OpFindingGet, "not-found")
	rec.RecordDuration(OpFindingList, 0.002)

	assert.InDelta(t, 2, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues(OpFindingDecide, "findings", StatusConflict)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dbOperationErrorsTotal.WithLabelValues(OpFindingGet, "findings", "not-found")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.dbOperationDuration))
}

func TestDatastoreMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewDatastoreMetrics(registry)
	require.NoError(t, err)
	_, err = NewDatastoreMetrics(registry)
	require.Error(t, err)
}

func TestFindingMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewFindingMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordFindingCreated("Unsafe Act")
	m.RecordAttachment(StatusSuccess, 4096)
	m.RecordAttachment(StatusError, 0)
	m.RecordSummaryCache(true)
	m.RecordSummaryCache(false)
	m.RecordSummaryCache(false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.findingsCreatedTotal.WithLabelValues("Unsafe Act")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.attachmentsStored.WithLabelValues(StatusError)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.summaryCacheTotal.WithLabelValues("miss")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.attachmentBytes))
}

func TestNilFindingMetricsIsNoOp(t *testing.T) {
	t.Parallel()

	var m *FindingMetrics
	assert.NotPanics(t, func() {
		m.RecordOperation(OpFindingCreate, StatusSuccess)
		m.RecordVerificationDecision("verified")
		m.RecordAttachment(StatusSuccess, 10)
		m.RecordSummaryCache(true)
	})
}

func TestHTTPInFlight(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RequestStarted()
	m.RequestStarted()
	m.RequestFinished()
	assert.InDelta(t, 1, m.InFlight(), 0)
}

func TestTestRecorder(t *testing.T) {
	t.Parallel()

	r := NewTestRecorder()
	assert.False(t, r.HasRecordedMetrics())

	r.RecordOperation(OpFindingCreate, StatusSuccess)
	r.RecordOperation(OpFindingCreate, StatusSuccess)
	r.RecordError(OpFindingCreate, "validation")
	r.RecordDuration(OpFindingCreate, 0.5)

	assert.Equal(t, 2, r.GetOperationCount(OpFindingCreate, StatusSuccess))
	assert.Equal(t, 1, r.GetErrorCount(OpFindingCreate, "validation"))
	assert.Equal(t, []float64{0.5}, r.GetDurations(OpFindingCreate))

	ops := r.GetAllOperations()
	ops[OpFindingCreate][StatusSuccess] = 99
	assert.Equal(t, 2, r.GetOperationCount(OpFindingCreate, StatusSuccess))

	r.Reset()
	assert.False(t, r.HasRecordedMetrics())
}
