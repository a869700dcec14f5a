// Package metrics provides datastore metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations
type DatastoreMetrics struct {
	registry *prometheus.Registry

	// Database operation metrics
	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec

	// Conditional update metrics
	dbConditionalMissesTotal *prometheus.CounterVec

	// Connection and performance metrics
	dbConnectionsOpenGauge  prometheus.Gauge
	dbConnectionsIdleGauge  prometheus.Gauge
	dbConnectionsInUseGauge prometheus.Gauge
	dbQueryResultSizeHist   *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() error {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"}, // status: success, error, conflict
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_db_operation_duration_seconds",
			Help:    "Time taken for database operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation", "table"},
	)

	m.dbOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	m.dbConditionalMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_conditional_update_misses_total",
			Help: "Conditional updates that matched no row",
		},
		[]string{"table", "reason"}, // reason: not_found, precondition
	)

	m.dbConnectionsOpenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_open",
		Help: "Number of open database connections",
	})
	m.dbConnectionsIdleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_idle",
		Help: "Number of idle database connections",
	})
	m.dbConnectionsInUseGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_in_use",
		Help: "Number of database connections in use",
	})

	m.dbQueryResultSizeHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_db_query_result_size",
			Help:    "Number of rows returned by list queries",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount15),
		},
		[]string{"operation", "table"},
	)

	m.collectors = []prometheus.Collector{
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.dbOperationErrorsTotal,
		m.dbConditionalMissesTotal,
		m.dbConnectionsOpenGauge,
		m.dbConnectionsIdleGauge,
		m.dbConnectionsInUseGauge,
		m.dbQueryResultSizeHist,
	}
	return nil
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordDbOperation records a database operation
func (m *DatastoreMetrics) RecordDbOperation(operation, table, status string) {
	m.dbOperationsTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordDbOperationDuration records the duration of a database operation
func (m *DatastoreMetrics) RecordDbOperationDuration(operation, table string, duration float64) {
	m.dbOperationDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordDbOperationError records a database operation error
func (m *DatastoreMetrics) RecordDbOperationError(operation, table, errorType string) {
	m.dbOperationErrorsTotal.WithLabelValues(operation, table, errorType).Inc()
}

// RecordConditionalMiss records a conditional update that affected no row.
func (m *DatastoreMetrics) RecordConditionalMiss(table, reason string) {
	m.dbConditionalMissesTotal.WithLabelValues(table, reason).Inc()
}

// UpdateConnectionMetrics updates the connection pool gauges
func (m *DatastoreMetrics) UpdateConnectionMetrics(open, idle, inUse int) {
	m.dbConnectionsOpenGauge.Set(float64(open))
	m.dbConnectionsIdleGauge.Set(float64(idle))
	m.dbConnectionsInUseGauge.Set(float64(inUse))
}

// RecordQueryResultSize records the number of rows a list query returned
func (m *DatastoreMetrics) RecordQueryResultSize(operation, table string, resultSize int) {
	m.dbQueryResultSizeHist.WithLabelValues(operation, table).Observe(float64(resultSize))
}

// ForTable returns a Recorder that labels every observation with table.
func (m *DatastoreMetrics) ForTable(table string) Recorder {
	return &tableRecorder{metrics: m, table: table}
}

type tableRecorder struct {
	metrics *DatastoreMetrics
	table   string
}

func (r *tableRecorder) RecordOperation(operation, status string) {
	r.metrics.RecordDbOperation(operation, r.table, status)
}

func (r *tableRecorder) RecordDuration(operation string, seconds float64) {
	r.metrics.RecordDbOperationDuration(operation, r.table, seconds)
}

func (r *tableRecorder) RecordError(operation, errorType string) {
	r.metrics.RecordDbOperationError(operation, r.table, errorType)
}
