// Package metrics exposes floodgate decisions as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/floodgate-io/floodgate/pkg/floodgate"
)

// Recorder implements floodgate.MetricsRecorder on Prometheus collectors.
type Recorder struct {
	decisions *prometheus.CounterVec
	duration  prometheus.Histogram
}

var _ floodgate.MetricsRecorder = (*Recorder)(nil)

// New registers the collectors with reg and returns the recorder.
// Pass prometheus.DefaultRegisterer to use the default registry.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "floodgate",
				Name:      "decisions_total",
				Help:      "Rate limit decisions by route and outcome.",
			},
			[]string{"route", "outcome"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "floodgate",
				Name:      "decision_duration_seconds",
				Help:      "Time spent deciding a rate limit check.",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 7),
			},
		),
	}
}

// Decision implements floodgate.MetricsRecorder.
func (r *Recorder) Decision(route string, allowed bool, elapsed time.Duration) {
	if route == "" {
		route = "direct"
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	r.decisions.WithLabelValues(route, outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
}
