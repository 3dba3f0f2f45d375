// Package metrics exposes Prometheus instrumentation for analyses, the
// reasoning service and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medreport-analyzer/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	analysesTotal        *prometheus.CounterVec
	analysisDuration     *prometheus.HistogramVec
	externalOutcomes     *prometheus.CounterVec
	findingsTotal        *prometheus.CounterVec
	uploadsTotal         *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medreport_analyses_total",
				Help: "Total number of report analyses by producing path",
			},
			[]string{"path"},
		),

		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "medreport_analysis_duration_seconds",
				Help:    "Report analysis duration in seconds",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"path"},
		),

		externalOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medreport_reasoning_outcomes_total",
				Help: "Reasoning service call outcomes by kind",
			},
			[]string{"kind", "cached"},
		),

		findingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medreport_findings_total",
				Help: "Findings produced by severity tier",
			},
			[]string{"status"},
		),

		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medreport_uploads_total",
				Help: "Document uploads by result",
			},
			[]string{"result"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAnalysis counts a completed analysis and its findings.
func (m *Metrics) RecordAnalysis(analysis *domain.Analysis) {
	path := string(analysis.Path)
	m.analysesTotal.WithLabelValues(path).Inc()
	m.analysisDuration.WithLabelValues(path).Observe(analysis.Duration.Seconds())

	if analysis.Result == nil {
		return
	}
	for _, f := range analysis.Result.Findings {
		m.findingsTotal.WithLabelValues(string(f.Status)).Inc()
	}
}

// RecordExternalOutcome counts one reasoning service outcome.
func (m *Metrics) RecordExternalOutcome(kind string, cached bool) {
	m.externalOutcomes.WithLabelValues(kind, strconv.FormatBool(cached)).Inc()
}

// RecordUpload counts an upload attempt by result ("accepted" or an error code).
func (m *Metrics) RecordUpload(result string) {
	m.uploadsTotal.WithLabelValues(result).Inc()
}

// GinMiddleware records request counts and latencies. The route template is
// used as the path label to keep cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
