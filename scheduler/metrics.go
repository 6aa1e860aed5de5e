package scheduler

import "time"

// MetricsCollector provides hooks for observing scheduling activity
type MetricsCollector interface {
	// RecordTrigger records an emitted trigger by type
	RecordTrigger(triggerType string, collection string)

	// RecordRetryScheduled records a scheduled retry with its attempt number and delay
	RecordRetryScheduled(collection string, attempt int, delay time.Duration)

	// RecordRetryExhausted records a collection whose retry budget was spent
	RecordRetryExhausted(collection string)

	// RecordGatedTrigger records an automatic trigger blocked by a gate
	RecordGatedTrigger(collection string, reason string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordTrigger(triggerType string, collection string)                {}
func (n *NoOpMetricsCollector) RecordRetryScheduled(collection string, attempt int, d time.Duration) {}
func (n *NoOpMetricsCollector) RecordRetryExhausted(collection string)                             {}
func (n *NoOpMetricsCollector) RecordGatedTrigger(collection string, reason string)                {}
