// Package metrics provides orchestrator metrics collection.
// It wraps Prometheus collectors to expose service lifecycle, event bus,
// tick, and shutdown telemetry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides orchestrator metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	serviceStatus       *prometheus.GaugeVec
	serviceStartLatency *prometheus.HistogramVec
	serviceFailures     *prometheus.CounterVec
	servicesRunning     prometheus.Gauge

	// Bus metrics
	busScatterTotal   *prometheus.CounterVec
	busHandlersTotal  *prometheus.CounterVec
	busDispatchErrors prometheus.Counter
	busDeferred       prometheus.Gauge
	busDrained        prometheus.Counter
	busDropped        prometheus.Counter

	// Tick metrics
	tickTotal    prometheus.Counter
	tickInterval prometheus.Histogram

	uptime    prometheus.Gauge
	startTime time.Time
}

// NewCollector creates a new collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "orchestrator"
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	c.serviceStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "status",
			Help:      "Current status of service (0=unstarted, 1=preinit, 2=running, 3=stopped)",
		},
		[]string{"service"},
	)

	c.serviceStartLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "start_duration_seconds",
			Help:      "Time taken to start a service, dependencies included",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"service", "result"},
	)

	c.serviceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "failures_total",
			Help:      "Total number of service hook failures by lifecycle phase",
		},
		[]string{"service", "phase"},
	)

	c.servicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "running",
			Help:      "Number of services in the running table",
		},
	)

	c.busScatterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "scatter_total",
			Help:      "Total number of scattered events by origin (owner or handoff)",
		},
		[]string{"event", "origin"},
	)

	c.busHandlersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handlers_total",
			Help:      "Total number of handler invocations by kind (deferred or catch_all)",
		},
		[]string{"kind"},
	)

	c.busDispatchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dispatch_errors_total",
			Help:      "Total number of handed-off events whose dispatch failed",
		},
	)

	c.busDeferred = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "deferred_pending",
			Help:      "Deferred handlers waiting for the next yield",
		},
	)

	c.busDrained = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "drained_total",
			Help:      "Handed-off events discarded during shutdown",
		},
	)

	c.busDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Deferred handlers discarded during shutdown",
		},
	)

	c.tickTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "total",
			Help:      "Total number of heartbeat distributions",
		},
	)

	c.tickInterval = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "interval_seconds",
			Help:      "Elapsed time passed to OnTick",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
	)

	c.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Orchestrator uptime in seconds",
		},
	)

	c.registry.MustRegister(
		c.serviceStatus,
		c.serviceStartLatency,
		c.serviceFailures,
		c.servicesRunning,
		c.busScatterTotal,
		c.busHandlersTotal,
		c.busDispatchErrors,
		c.busDeferred,
		c.busDrained,
		c.busDropped,
		c.tickTotal,
		c.tickInterval,
		c.uptime,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordServiceStatus records the current status of a service.
func (c *Collector) RecordServiceStatus(service string, status int) {
	c.serviceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordServiceStart records service start latency.
func (c *Collector) RecordServiceStart(service string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.serviceStartLatency.WithLabelValues(service, result).Observe(duration.Seconds())
}

// RecordServiceFailure records a failed lifecycle hook.
func (c *Collector) RecordServiceFailure(service, phase string) {
	c.serviceFailures.WithLabelValues(service, phase).Inc()
}

// RecordServicesRunning records the size of the running table.
func (c *Collector) RecordServicesRunning(count int) {
	c.servicesRunning.Set(float64(count))
}

// RecordScatter records one scattered event.
func (c *Collector) RecordScatter(event, origin string) {
	c.busScatterTotal.WithLabelValues(event, origin).Inc()
}

// RecordHandler records one handler invocation or scheduling.
func (c *Collector) RecordHandler(kind string) {
	c.busHandlersTotal.WithLabelValues(kind).Inc()
}

// RecordDispatchError records a failed dispatch of a handed-off event.
func (c *Collector) RecordDispatchError() {
	c.busDispatchErrors.Inc()
}

// RecordDeferredPending records the deferred queue depth.
func (c *Collector) RecordDeferredPending(depth int) {
	c.busDeferred.Set(float64(depth))
}

// RecordShutdownDiscards records envelopes and deferred handlers discarded at shutdown.
func (c *Collector) RecordShutdownDiscards(drained, dropped int) {
	c.busDrained.Add(float64(drained))
	c.busDropped.Add(float64(dropped))
}

// RecordTick records one heartbeat distribution.
func (c *Collector) RecordTick(elapsed time.Duration) {
	c.tickTotal.Inc()
	c.tickInterval.Observe(elapsed.Seconds())
}

// UpdateUptime updates the uptime metric.
func (c *Collector) UpdateUptime() {
	c.uptime.Set(time.Since(c.startTime).Seconds())
}

// Reset resets gauges.
func (c *Collector) Reset() {
	c.serviceStatus.Reset()
	c.servicesRunning.Set(0)
	c.busDeferred.Set(0)
	c.startTime = time.Now()
}

// NoOpCollector is a metrics collector that discards all metrics.
type NoOpCollector struct{}

// NewNoOpCollector creates a no-op metrics collector.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordServiceStatus(service string, status int)               {}
func (*NoOpCollector) RecordServiceStart(service string, d time.Duration, err error) {}
func (*NoOpCollector) RecordServiceFailure(service, phase string)                   {}
func (*NoOpCollector) RecordServicesRunning(count int)                              {}
func (*NoOpCollector) RecordScatter(event, origin string)                           {}
func (*NoOpCollector) RecordHandler(kind string)                                    {}
func (*NoOpCollector) RecordDispatchError()                                         {}
func (*NoOpCollector) RecordDeferredPending(depth int)                              {}
func (*NoOpCollector) RecordShutdownDiscards(drained, dropped int)                  {}
func (*NoOpCollector) RecordTick(elapsed time.Duration)                             {}
func (*NoOpCollector) UpdateUptime()                                                {}
func (*NoOpCollector) Reset()                                                       {}

// MetricsCollector is the interface for metrics collection.
type MetricsCollector interface {
	RecordServiceStatus(service string, status int)
	RecordServiceStart(service string, duration time.Duration, err error)
	RecordServiceFailure(service, phase string)
	RecordServicesRunning(count int)
	RecordScatter(event, origin string)
	RecordHandler(kind string)
	RecordDispatchError()
	RecordDeferredPending(depth int)
	RecordShutdownDiscards(drained, dropped int)
	RecordTick(elapsed time.Duration)
	UpdateUptime()
	Reset()
}

// Verify interface compliance
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = (*NoOpCollector)(nil)
)
