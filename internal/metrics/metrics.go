// Package metrics registers every Prometheus collector the service
// exports. Handlers observe through the Metrics struct; nothing else
// touches the registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame admission outcome labels.
const (
	FrameAccepted  = "accepted"
	FrameBusy      = "busy"
	FrameThrottled = "throttled"
	FrameDuplicate = "duplicate"
	FrameBadImage  = "bad_image"
	FrameFailed    = "failed"
)

// Solution run outcome labels.
const (
	SolutionCompleted = "completed"
	SolutionFallback  = "fallback"
	SolutionFailed    = "failed"
)

// stageBuckets covers model-call latencies from tens of milliseconds to
// the tens of seconds a slow vision round trip can take.
var stageBuckets = []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000}

// Metrics owns the service's collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	frameOutcomes    *prometheus.CounterVec
	solutionOutcomes *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		frameOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixsight",
			Name:      "frame_outcomes_total",
			Help:      "Frame submissions by admission outcome.",
		}, []string{"outcome"}),
		solutionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixsight",
			Name:      "solution_outcomes_total",
			Help:      "Solution pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fixsight",
			Subsystem: "pipeline",
			Name:      "stage_duration_milliseconds",
			Help:      "Wall-clock duration of each pipeline stage.",
			Buckets:   stageBuckets,
		}, []string{"stage"}),
	}
}

// CountFrame records one frame submission outcome.
func (m *Metrics) CountFrame(outcome string) {
	m.frameOutcomes.WithLabelValues(outcome).Inc()
}

// CountSolution records one solution run outcome.
func (m *Metrics) CountSolution(outcome string) {
	m.solutionOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveStage records one pipeline stage duration in milliseconds.
func (m *Metrics) ObserveStage(stage string, ms float64) {
	m.stageDuration.WithLabelValues(stage).Observe(ms)
}

// ObserveStages records a whole latency map, as produced by a solution
// run.
func (m *Metrics) ObserveStages(latencies map[string]float64) {
	for stage, ms := range latencies {
		m.ObserveStage(stage, ms)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
