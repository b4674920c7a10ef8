package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sessio-dev/sessio/pkg/session"
)

// MetricsConfig configures the Prometheus metrics decorator.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "sessio").
	Namespace string

	// Subsystem is the metrics subsystem (default: "store").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for operation duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registerer to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics decorator.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registerer.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "sessio",
		Subsystem: "store",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metricsMap wraps a session.Map and records per-operation metrics.
type metricsMap struct {
	next session.Map

	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	evicted  prometheus.Counter
}

// Metrics wraps a backend with Prometheus instrumentation: an operation
// counter labeled by op and status, a duration histogram labeled by op,
// and a counter of sessions evicted by sweeps. Metrics registers its
// collectors on the configured registerer; wrap a given registry at most
// once.
func Metrics(next session.Map, opts ...MetricsOption) session.Map {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	return &metricsMap{
		next: next,
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "ops_total",
			Help:        "Total number of session store operations",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "op_duration_seconds",
			Help:        "Session store operation duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"op"}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sessions_evicted_total",
			Help:        "Total number of sessions removed by expiry sweeps",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *metricsMap) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ops.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsMap) List(ctx context.Context) ([]*session.Data, error) {
	start := time.Now()
	out, err := m.next.List(ctx)
	m.observe("list", start, err)
	return out, err
}

func (m *metricsMap) Get(ctx context.Context, id string) (*session.Data, error) {
	start := time.Now()
	d, err := m.next.Get(ctx, id)
	m.observe("get", start, err)
	return d, err
}

func (m *metricsMap) Insert(ctx context.Context, id string, data *session.Data) error {
	start := time.Now()
	err := m.next.Insert(ctx, id, data)
	m.observe("insert", start, err)
	return err
}

func (m *metricsMap) Remove(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := m.next.Remove(ctx, id)
	m.observe("remove", start, err)
	return ok, err
}

func (m *metricsMap) RemoveExpired(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := m.next.RemoveExpired(ctx)
	m.observe("remove_expired", start, err)
	if n > 0 {
		m.evicted.Add(float64(n))
	}
	return n, err
}

func (m *metricsMap) Clear(ctx context.Context) error {
	start := time.Now()
	err := m.next.Clear(ctx)
	m.observe("clear", start, err)
	return err
}
