// Package telemetry exposes Prometheus metrics for the terminology service:
// HTTP server metrics recorded by middleware, plus counters for the two
// operations the service exists for (term search and FHIR generation).
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for FHIR generation.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Provider owns a private registry so tests can build as many providers as they like.
type Provider struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge

	searches      prometheus.Counter
	searchResults prometheus.Histogram
	generated     *prometheus.CounterVec
	termsLoaded   prometheus.Gauge
	panics        prometheus.Counter
}

// NewProvider creates and registers all metrics.
func NewProvider(serviceName string) *Provider {
	constLabels := prometheus.Labels{"service": serviceName}

	p := &Provider{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_server_requests_total",
			Help:        "Total HTTP requests by method, route and status",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_server_request_duration_seconds",
			Help:        "HTTP request duration",
			ConstLabels: constLabels,
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_server_active_requests",
			Help:        "In-flight HTTP requests",
			ConstLabels: constLabels,
		}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "terminology_searches_total",
			Help:        "Total term searches served",
			ConstLabels: constLabels,
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "terminology_search_results",
			Help:        "Number of matches per search",
			ConstLabels: constLabels,
			Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "terminology_fhir_generated_total",
			Help:        "FHIR generation requests by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		termsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "terminology_terms_loaded",
			Help:        "Terms available to search",
			ConstLabels: constLabels,
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "http_server_panics_total",
			Help:        "Handler panics recovered by middleware",
			ConstLabels: constLabels,
		}),
	}

	p.registry.MustRegister(
		p.httpRequests,
		p.httpDuration,
		p.activeRequests,
		p.searches,
		p.searchResults,
		p.generated,
		p.termsLoaded,
		p.panics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

// Registry returns the provider's registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// ObserveSearch records one served search and its match count. Safe on a nil provider.
func (p *Provider) ObserveSearch(matches int) {
	if p == nil {
		return
	}
	p.searches.Inc()
	p.searchResults.Observe(float64(matches))
}

// ObserveGenerate records one FHIR generation outcome. Safe on a nil provider.
func (p *Provider) ObserveGenerate(outcome string) {
	if p == nil {
		return
	}
	p.generated.WithLabelValues(outcome).Inc()
}

// SetTermsLoaded records the size of the term store. Safe on a nil provider.
func (p *Provider) SetTermsLoaded(n int) {
	if p == nil {
		return
	}
	p.termsLoaded.Set(float64(n))
}

// ObservePanic records one recovered handler panic. Safe on a nil provider.
func (p *Provider) ObservePanic() {
	if p == nil {
		return
	}
	p.panics.Inc()
}

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.activeRequests.Inc()
			defer p.activeRequests.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			// Route pattern, not actual path, to keep label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			p.httpRequests.WithLabelValues(method, route, status).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
