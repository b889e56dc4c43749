// Package metrics exposes the gateway's Prometheus metrics and adapts them
// to the observer interfaces of the other packages.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/config"
)

// Collector registers and records all gateway metrics. It implements the
// observer interfaces of the backend client, the health aggregator, and the
// terminal feed, so those packages stay free of Prometheus imports.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	backendUp       *prometheus.GaugeVec
	feedDropped     prometheus.Counter
	feedSubscribers prometheus.Gauge

	mu sync.Mutex
}

// NewCollector creates a collector with the configured namespace and
// subsystem. A nil registry gets a fresh one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "synapse"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}

	c := &Collector{
		enabled:  cfg.Enabled,
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_requests_total",
			Help:      "Backend requests by backend name and HTTP status code (0 = transport failure).",
		}, []string{"backend", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"backend"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_retries_total",
			Help:      "Retry attempts by backend name.",
		}, []string{"backend"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per backend (0 closed, 1 half-open, 2 open).",
		}, []string{"backend"}),
		backendUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_up",
			Help:      "Last health probe result per backend (1 up, 0 down).",
		}, []string{"backend"}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "terminal_feed_dropped_total",
			Help:      "Feed events dropped because a subscriber queue was full.",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "terminal_feed_subscribers",
			Help:      "Currently attached terminal feed subscribers.",
		}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.retriesTotal,
		c.circuitState,
		c.backendUp,
		c.feedDropped,
		c.feedSubscribers,
	)
	return c
}

// Handler returns the Prometheus exposition handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest implements backend.Observer.
func (c *Collector) ObserveRequest(name string, status int, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.requestsTotal.WithLabelValues(name, statusLabel(status)).Inc()
	c.requestDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveRetry implements backend.Observer.
func (c *Collector) ObserveRetry(name string) {
	if !c.enabled {
		return
	}
	c.retriesTotal.WithLabelValues(name).Inc()
}

// ObserveCircuit implements backend.Observer.
func (c *Collector) ObserveCircuit(name string, state backend.CircuitStatus) {
	if !c.enabled {
		return
	}
	var value float64
	switch state {
	case backend.CircuitHalfOpen:
		value = 1
	case backend.CircuitOpen:
		value = 2
	}
	c.circuitState.WithLabelValues(name).Set(value)
}

// ObserveBackendUp implements health.Observer.
func (c *Collector) ObserveBackendUp(name string, up bool) {
	if !c.enabled {
		return
	}
	if up {
		c.backendUp.WithLabelValues(name).Set(1)
	} else {
		c.backendUp.WithLabelValues(name).Set(0)
	}
}

// ObserveFeedDrop implements terminalfeed.FeedObserver.
func (c *Collector) ObserveFeedDrop() {
	if !c.enabled {
		return
	}
	c.feedDropped.Inc()
}

// ObserveSubscribers implements terminalfeed.FeedObserver.
func (c *Collector) ObserveSubscribers(count int) {
	if !c.enabled {
		return
	}
	c.feedSubscribers.Set(float64(count))
}

func statusLabel(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
