// Package metrics provides custom Prometheus metrics for hsetrack.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it instead of a concrete metrics struct so tests can
// pass a TestRecorder or NoOpRecorder.
type Recorder interface {
	// RecordOperation records an operation with its status, e.g.
	// ("finding_decide", "conflict").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence. errorType is usually an
	// errors category such as "storage" or "not-found".
	RecordError(operation, errorType string)
}

// NoOpRecorder is a no-op implementation of the Recorder interface.
type NoOpRecorder struct{}

// RecordOperation does nothing.
func (n *NoOpRecorder) RecordOperation(operation, status string) {}

// RecordDuration does nothing.
func (n *NoOpRecorder) RecordDuration(operation string, seconds float64) {}

// RecordError does nothing.
func (n *NoOpRecorder) RecordError(operation, errorType string) {}

// NewNoOpRecorder creates a new no-op recorder instance.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}
