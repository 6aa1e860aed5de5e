package conflict

import "time"

// MetricsCollector provides hooks for observing conflict activity
type MetricsCollector interface {
	// RecordConflictDetected records a detected conflict and its field count
	RecordConflictDetected(collection string, fields int)

	// RecordResolution records a resolution attempt with its strategy and outcome
	RecordResolution(strategy string, duration time.Duration, success bool)

	// RecordManualReview records a resolution deferred to manual review
	RecordManualReview(collection string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordConflictDetected(collection string, fields int)           {}
func (n *NoOpMetricsCollector) RecordResolution(strategy string, d time.Duration, success bool) {}
func (n *NoOpMetricsCollector) RecordManualReview(collection string)                            {}
