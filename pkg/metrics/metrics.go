// Package metrics exports light controller activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// Collector implements engine.Recorder on its own registry.
type Collector struct {
	registry *prometheus.Registry

	// Controller metrics
	running          prometheus.Gauge
	refreshes        *prometheus.CounterVec
	refreshSchedules *prometheus.CounterVec
	refreshInterval  prometheus.Gauge
	watchdogFires    *prometheus.CounterVec
	watchdogDrift    prometheus.Histogram
	events           *prometheus.CounterVec

	// Channel metrics
	brightness *prometheus.GaugeVec
	intensity  *prometheus.GaugeVec

	// Telemetry metrics
	publishes *prometheus.CounterVec
}

var _ engine.Recorder = (*Collector)(nil)

// NewCollector creates a collector. The namespace defaults to "rpilight".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "rpilight"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "running",
			Help:      "Whether the light controller is running (1) or stopped (0)",
		},
	)

	c.refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "refreshes_total",
			Help:      "Total number of channel refreshes",
		},
		[]string{"behavior"},
	)

	c.refreshSchedules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "refresh_schedules_total",
			Help:      "Total number of refresh timer reschedules",
		},
		[]string{"kind"},
	)

	c.refreshInterval = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "refresh_interval_seconds",
			Help:      "Current repeating refresh interval, 0 when refreshing once",
		},
	)

	c.watchdogFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "fires_total",
			Help:      "Total number of watchdog fires",
		},
		[]string{"result"},
	)

	c.watchdogDrift = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "drift_seconds",
			Help:      "How far the watchdog fired past the expected refresh",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		},
	)

	c.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "fired_total",
			Help:      "Total number of events fired",
		},
		[]string{"event"},
	)

	c.brightness = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "brightness",
			Help:      "Last perceived brightness written to a channel",
		},
		[]string{"channel"},
	)

	c.intensity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "intensity",
			Help:      "Last output intensity written to a channel",
		},
		[]string{"channel"},
	)

	c.publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "publishes_total",
			Help:      "Total number of telemetry publishes",
		},
		[]string{"target", "result"},
	)

	c.registry.MustRegister(
		c.running,
		c.refreshes,
		c.refreshSchedules,
		c.refreshInterval,
		c.watchdogFires,
		c.watchdogDrift,
		c.events,
		c.brightness,
		c.intensity,
		c.publishes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RefreshFired(behavior string) {
	c.refreshes.WithLabelValues(behavior).Inc()
}

func (c *Collector) RefreshScheduled(kind engine.UpdateKind, interval time.Duration) {
	c.refreshSchedules.WithLabelValues(kind.String()).Inc()
	c.refreshInterval.Set(interval.Seconds())
}

func (c *Collector) WatchdogFired(late bool, drift time.Duration) {
	result := "on_time"
	if late {
		result = "late"
	}
	c.watchdogFires.WithLabelValues(result).Inc()
	if drift > 0 {
		c.watchdogDrift.Observe(drift.Seconds())
	}
}

func (c *Collector) EventFired(token string) {
	c.events.WithLabelValues(token).Inc()
}

func (c *Collector) ChannelLevel(token string, b light.Brightness, i light.Intensity) {
	c.brightness.WithLabelValues(token).Set(float64(b))
	c.intensity.WithLabelValues(token).Set(float64(i))
}

func (c *Collector) SetRunning(running bool) {
	if running {
		c.running.Set(1)
	} else {
		c.running.Set(0)
	}
}

// RecordPublish counts a telemetry write to target ("mqtt" or "redis").
func (c *Collector) RecordPublish(target string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.publishes.WithLabelValues(target, result).Inc()
}
