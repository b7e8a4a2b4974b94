package floodgate

import "time"

// MetricsRecorder receives the outcome of every decision. The library only
// depends on this interface; the metrics package provides a Prometheus
// implementation.
type MetricsRecorder interface {
	// Decision is called once per take with the route (empty for direct
	// Allow calls), the outcome, and how long the decision took.
	Decision(route string, allowed bool, elapsed time.Duration)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

// Decision implements MetricsRecorder.
func (NopMetrics) Decision(string, bool, time.Duration) {}
