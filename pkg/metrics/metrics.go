// Package metrics exposes scheduler activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/guido-cesarano/rrscheduler/pkg/events"
	"github.com/guido-cesarano/rrscheduler/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors, registered on a private registry so several
// schedulers (or tests) never clash on the global one.
type Metrics struct {
	registry *prometheus.Registry

	// allocations tracks tasks assigned to a resource.
	// Labels:
	//   - project: project id
	allocations *prometheus.CounterVec

	// completions tracks tasks removed from a resource.
	// Labels:
	//   - project: project id
	completions *prometheus.CounterVec

	// queueWait is the time between task creation and its allocation.
	queueWait *prometheus.HistogramVec

	// queueDepth is refreshed by Observe.
	// Labels:
	//   - project: project id
	queueDepth *prometheus.GaugeVec

	resourcesBusy prometheus.Gauge
	resourcesFree prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rrsched_allocations_total",
			Help: "The total number of tasks allocated to a resource",
		}, []string{"project"}),

		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rrsched_completions_total",
			Help: "The total number of tasks finished on a resource",
		}, []string{"project"}),

		queueWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rrsched_task_wait_seconds",
			Help:    "Time spent in a project queue before allocation",
			Buckets: prometheus.DefBuckets,
		}, []string{"project"}),

		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rrsched_queue_depth",
			Help: "Number of tasks pending in each project queue",
		}, []string{"project"}),

		resourcesBusy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_resources_busy",
			Help: "Number of resources currently holding a task",
		}),

		resourcesFree: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_resources_free",
			Help: "Number of resources currently free",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements events.Sink.
func (m *Metrics) Emit(e events.Event) {
	project := strconv.Itoa(e.ProjectID)

	switch e.Kind {
	case events.KindAllocated:
		m.allocations.WithLabelValues(project).Inc()

		if !e.EnqueuedAt.IsZero() {
			m.queueWait.WithLabelValues(project).Observe(e.At.Sub(e.EnqueuedAt).Seconds())
		}

	case events.KindCompleted:
		m.completions.WithLabelValues(project).Inc()
	}
}

// Observe refreshes the gauges from a scheduler status.
func (m *Metrics) Observe(status scheduler.Status) {
	for projectID, depth := range status.QueueDepths {
		m.queueDepth.WithLabelValues(strconv.Itoa(projectID)).Set(float64(depth))
	}

	m.resourcesBusy.Set(float64(status.Busy))
	m.resourcesFree.Set(float64(status.Free))
}
