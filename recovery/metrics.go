package recovery

import "time"

// MetricsCollector provides hooks for observing recovery activity
type MetricsCollector interface {
	// RecordOperation records one recovery operation and its outcome
	RecordOperation(op string, duration time.Duration, success bool, affected int)

	// RecordIntegrityIssues records the issues found by a validation pass
	RecordIntegrityIssues(issueType string, count int)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordOperation(op string, d time.Duration, success bool, affected int) {}
func (n *NoOpMetricsCollector) RecordIntegrityIssues(issueType string, count int)                      {}
