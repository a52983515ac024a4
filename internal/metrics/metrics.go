// Package metrics exposes prometheus collectors for counterfactual searches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edc"

// Recorder records search statistics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	runs            *prometheus.CounterVec
	scorerCalls     prometheus.Counter
	explanations    prometheus.Counter
	explanationSize prometheus.Histogram
	runDuration     prometheus.Histogram
	scorerErrors    prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Counterfactual searches by stop reason",
		}, []string{"stop_reason"}),
		scorerCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_calls_total",
			Help:      "Calls made to the classifier scoring function",
		}),
		explanations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Counterfactual explanations found",
		}),
		explanationSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "explanation_size",
			Help:      "Number of features per explanation",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128 features
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a counterfactual search",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~260s
		}),
		scorerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_errors_total",
			Help:      "Searches aborted by a scoring failure",
		}),
	}
}

// ObserveRun records a completed search
func (r *Recorder) ObserveRun(stopReason string, scorerCalls int, sizes []int, elapsed time.Duration) {
	if r == nil {
		return
	}

	r.runs.WithLabelValues(stopReason).Inc()
	r.scorerCalls.Add(float64(scorerCalls))
	r.explanations.Add(float64(len(sizes)))
	for _, size := range sizes {
		r.explanationSize.Observe(float64(size))
	}
	r.runDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records a search aborted by a scorer error
func (r *Recorder) ObserveFailure(scorerCalls int) {
	if r == nil {
		return
	}

	r.scorerCalls.Add(float64(scorerCalls))
	r.scorerErrors.Inc()
}
