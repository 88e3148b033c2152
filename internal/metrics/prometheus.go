// Package metrics exports host and invocation metrics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/fnhost/internal/fswatch"
	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/models"
)

// Collector implements invoke.MetricsLogger on a private registry.
type Collector struct {
	// Invocation metrics
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec

	// Host metrics
	hostState   prometheus.Gauge
	transitions *prometheus.CounterVec
	restarts    prometheus.Counter

	registry *prometheus.Registry
}

// NewCollector creates a collector. An empty namespace defaults to "fnhost".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "fnhost"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.started = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_invocations_started_total",
			Help:      "Total number of function invocations started",
		},
		[]string{"function"},
	)

	c.completed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_invocations_completed_total",
			Help:      "Total number of function invocations completed, by outcome",
		},
		[]string{"function", "outcome"},
	)

	c.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "function_invocation_duration_seconds",
			Help:      "Duration of function invocations",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 300},
		},
		[]string{"function", "outcome"},
	)

	c.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "function_invocations_in_flight",
			Help:      "Number of invocations currently executing",
		},
		[]string{"function"},
	)

	c.hostState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_state",
			Help:      "Current host state (0=created 1=starting 2=running 3=stopping 4=stopped 5=errored)",
		},
	)

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_state_transitions_total",
			Help:      "Total number of host state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_restarts_total",
			Help:      "Total number of host restarts triggered by file changes",
		},
	)

	c.registry.MustRegister(
		c.started,
		c.completed,
		c.duration,
		c.inFlight,
		c.hostState,
		c.transitions,
		c.restarts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// BeginEvent records the start of an invocation.
func (c *Collector) BeginEvent(e *invoke.FunctionStartedEvent) {
	c.started.WithLabelValues(e.FunctionName).Inc()
	c.inFlight.WithLabelValues(e.FunctionName).Inc()
}

// EndEvent records the end of an invocation.
func (c *Collector) EndEvent(e *invoke.FunctionStartedEvent) {
	outcome := e.Outcome.String()
	c.inFlight.WithLabelValues(e.FunctionName).Dec()
	c.completed.WithLabelValues(e.FunctionName, outcome).Inc()
	c.duration.WithLabelValues(e.FunctionName, outcome).Observe(e.Duration().Seconds())
}

// HostStateChanged records a lifecycle transition.
func (c *Collector) HostStateChanged(from, to models.HostState) {
	c.hostState.Set(float64(to))
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// HostRestarted counts a file-change restart.
func (c *Collector) HostRestarted() {
	c.restarts.Inc()
}

// WatchWatcher exports the counters of a file watcher. stats is read on
// every scrape, so it may return the stats of whichever watcher is current.
func (c *Collector) WatchWatcher(name string, stats func() fswatch.Stats) error {
	labels := prometheus.Labels{"watcher": name}
	fns := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "fnhost_file_watcher_failures_total",
			Help:        "Failures reported by the native file watch",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Failures) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "fnhost_file_watcher_recoveries_total",
			Help:        "Successful file watcher recoveries",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Recoveries) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "fnhost_file_watcher_consecutive_failures",
			Help:        "Failed rebuild attempts since the last recovery",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().ConsecutiveFailures) }),
	}
	for _, fn := range fns {
		if err := c.registry.Register(fn); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
