package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for import passes. A nil *Metrics and
// one created with metrics disabled record nothing.
type Metrics struct {
	config MetricsConfig

	passesStarted   *prometheus.CounterVec
	passesCompleted *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec

	resources *prometheus.CounterVec
	scanned   *prometheus.CounterVec

	errorsByCode *prometheus.CounterVec

	activePasses prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		passesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_passes_started_total",
				Help:      "Total number of import passes started",
			},
			[]string{"kind"},
		),
		passesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_passes_completed_total",
				Help:      "Total number of import passes completed",
			},
			[]string{"kind", "status"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_pass_duration_seconds",
				Help:      "Duration of import passes in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		resources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_resources_total",
				Help:      "Total number of imported resources by outcome",
			},
			[]string{"kind", "outcome"},
		),
		scanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "existing_resources_scanned_total",
				Help:      "Total number of existing resources read while matching",
			},
			[]string{"kind", "scope"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_errors_total",
				Help:      "Total number of import errors by error code",
			},
			[]string{"code"},
		),
		activePasses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_import_passes",
				Help:      "Current number of running import passes",
			},
		),
	}

	registry.MustRegister(
		m.passesStarted,
		m.passesCompleted,
		m.passDuration,
		m.resources,
		m.scanned,
		m.errorsByCode,
		m.activePasses,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordPassStarted records the start of an import pass for kind.
func (m *Metrics) RecordPassStarted(kind string) {
	if !m.enabled() {
		return
	}
	m.passesStarted.WithLabelValues(kind).Inc()
	m.activePasses.Inc()
}

// RecordPassCompleted records a finished import pass.
func (m *Metrics) RecordPassCompleted(kind, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.passesCompleted.WithLabelValues(kind, status).Inc()
	m.passDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.activePasses.Dec()
}

// RecordResource records the outcome of one imported resource.
func (m *Metrics) RecordResource(kind, outcome string) {
	if !m.enabled() {
		return
	}
	m.resources.WithLabelValues(kind, outcome).Inc()
}

// RecordScanned records existing resources read in scope
// (current_artifact or other_branches).
func (m *Metrics) RecordScanned(kind, scope string, count int) {
	if !m.enabled() {
		return
	}
	m.scanned.WithLabelValues(kind, scope).Add(float64(count))
}

// RecordError records an import error by code.
func (m *Metrics) RecordError(code string) {
	if !m.enabled() || code == "" {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Registry returns the registry metrics are registered with, nil when
// disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer exposes the metrics endpoint in the background. It
// does nothing when metrics are disabled or no listen address is set.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) *http.Server {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", server.Addr).Msg("Metrics server stopped")
		}
	}()

	return server
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
