package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zircuit-labs/pod-identity/cmd/config"
	"github.com/zircuit-labs/pod-identity/cmd/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client interface for metrics collection
type Client interface {
	Incr(name string, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// PrometheusClient wraps Prometheus metrics registered on its own registry
type PrometheusClient struct {
	namespace string
	registry  *prometheus.Registry
	factory   promauto.Factory

	mu        sync.Mutex
	counters  map[string]*prometheus.CounterVec
	gauges    map[string]*prometheus.GaugeVec
	summaries map[string]*prometheus.SummaryVec
}

// NoOpClient is a no-op implementation of the Client interface
type NoOpClient struct{}

func (c *NoOpClient) Incr(name string, tags []string, rate float64) error { return nil }
func (c *NoOpClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	return nil
}
func (c *NoOpClient) Gauge(name string, value float64, tags []string, rate float64) error {
	return nil
}
func (c *NoOpClient) Close() error { return nil }

// NewClient creates a new metrics client based on configuration
func NewClient(cfg *config.MetricsConfig) (Client, error) {
	if !cfg.Enabled {
		logger.Info("metrics collection disabled")
		return &NoOpClient{}, nil
	}

	logger.Info("metrics collection enabled (Prometheus)", "namespace", cfg.Namespace)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &PrometheusClient{
		namespace: cfg.Namespace,
		registry:  registry,
		factory:   promauto.With(registry),
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		summaries: make(map[string]*prometheus.SummaryVec),
	}, nil
}

// Handler serves the client's registry in the Prometheus exposition format
func (c *PrometheusClient) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (c *PrometheusClient) Registry() *prometheus.Registry {
	return c.registry
}

// parseTags converts tag array ["key:value", "key2:value2"] to label names and values
func parseTags(tags []string) ([]string, []string) {
	if len(tags) == 0 {
		return []string{}, []string{}
	}

	labelNames := make([]string, 0, len(tags))
	labelValues := make([]string, 0, len(tags))

	for _, tag := range tags {
		name, value, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}
		labelNames = append(labelNames, name)
		labelValues = append(labelValues, value)
	}

	return labelNames, labelValues
}

// metricName maps dotted names ("http.requests") onto Prometheus names
func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func (c *PrometheusClient) Incr(name string, tags []string, rate float64) error {
	labelNames, labelValues := parseTags(tags)

	c.mu.Lock()
	counter, ok := c.counters[name]
	if !ok {
		counter = c.factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: c.namespace,
				Name:      metricName(name),
				Help:      name,
			},
			labelNames,
		)
		c.counters[name] = counter
	}
	c.mu.Unlock()

	counter.WithLabelValues(labelValues...).Add(rate)
	return nil
}

func (c *PrometheusClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	labelNames, labelValues := parseTags(tags)

	c.mu.Lock()
	summary, ok := c.summaries[name]
	if !ok {
		summary = c.factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  c.namespace,
				Name:       metricName(name),
				Help:       name,
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			labelNames,
		)
		c.summaries[name] = summary
	}
	c.mu.Unlock()

	summary.WithLabelValues(labelValues...).Observe(value.Seconds())
	return nil
}

func (c *PrometheusClient) Gauge(name string, value float64, tags []string, rate float64) error {
	labelNames, labelValues := parseTags(tags)

	c.mu.Lock()
	gauge, ok := c.gauges[name]
	if !ok {
		gauge = c.factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: c.namespace,
				Name:      metricName(name),
				Help:      name,
			},
			labelNames,
		)
		c.gauges[name] = gauge
	}
	c.mu.Unlock()

	gauge.WithLabelValues(labelValues...).Set(value)
	return nil
}

func (c *PrometheusClient) Close() error {
	return nil
}
