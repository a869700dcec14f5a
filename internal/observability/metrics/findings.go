package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FindingMetrics contains business-level metrics for the finding lifecycle.
type FindingMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	findingsCreatedTotal  *prometheus.CounterVec
	verificationDecisions *prometheus.CounterVec
	attachmentsStored     *prometheus.CounterVec
	attachmentBytes       prometheus.Histogram
	summaryCacheTotal     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewFindingMetrics creates and registers finding lifecycle metrics.
func NewFindingMetrics(registry *prometheus.Registry) (*FindingMetrics, error) {
	m := &FindingMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FindingMetrics) initMetrics() error {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hse_operations_total",
			Help: "Total number of finding lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hse_operation_duration_seconds",
			Help:    "Time taken for finding lifecycle operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)

	m.operationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hse_operation_errors_total",
			Help: "Total number of finding lifecycle errors by category",
		},
		[]string{"operation", "error_type"},
	)

	m.findingsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hse_findings_created_total",
			Help: "Findings recorded, by category",
		},
		[]string{"category"},
	)

	m.verificationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hse_verification_decisions_total",
			Help: "Verification attempts by outcome",
		},
		[]string{"outcome"}, // outcome: verified, rejected, conflict, denied
	)

	m.attachmentsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hse_attachments_total",
			Help: "Evidence files processed, by result",
		},
		[]string{"status"}, // status: success, error
	)

	m.attachmentBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hse_attachment_size_bytes",
		Help:    "Size of stored evidence files",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor4, BucketCount10), // 1KB to ~256MB
	})

	m.summaryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hse_summary_cache_total",
			Help: "Summary cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.operationErrors,
		m.findingsCreatedTotal,
		m.verificationDecisions,
		m.attachmentsStored,
		m.attachmentBytes,
		m.summaryCacheTotal,
	}
	return nil
}

// Describe implements the Collector interface
func (m *FindingMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *FindingMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder. All record methods are no-ops on a
// nil *FindingMetrics so services can run without a registry.
func (m *FindingMetrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *FindingMetrics) RecordDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *FindingMetrics) RecordError(operation, errorType string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordFindingCreated counts a newly recorded finding.
func (m *FindingMetrics) RecordFindingCreated(category string) {
	if m == nil {
		return
	}
	m.findingsCreatedTotal.WithLabelValues(category).Inc()
}

// RecordVerificationDecision counts a verification attempt outcome.
func (m *FindingMetrics) RecordVerificationDecision(outcome string) {
	if m == nil {
		return
	}
	m.verificationDecisions.WithLabelValues(outcome).Inc()
}

// RecordAttachment counts one evidence file and, when stored, its size.
func (m *FindingMetrics) RecordAttachment(status string, sizeBytes int64) {
	if m == nil {
		return
	}
	m.attachmentsStored.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.attachmentBytes.Observe(float64(sizeBytes))
	}
}

// RecordSummaryCache counts a summary cache hit or miss.
func (m *FindingMetrics) RecordSummaryCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.summaryCacheTotal.WithLabelValues(result).Inc()
}
