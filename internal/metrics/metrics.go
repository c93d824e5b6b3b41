package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwaldner/greeks/engine"
	"github.com/jwaldner/greeks/internal/logger"
)

// Metrics owns a private registry with the service's collectors
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec   // method, route, status
	HTTPRequestDuration *prometheus.HistogramVec // method, route
	EngineBatchDuration *prometheus.HistogramVec // mode
	EngineContracts     *prometheus.CounterVec   // mode
	SurfaceQueries      *prometheus.CounterVec   // result: hit, empty
	SurfaceSlices       prometheus.Gauge
}

// New registers the Go runtime, process and service collectors
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	m.HTTPRequestDuration = m.newHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.EngineBatchDuration = m.newHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_batch_duration_seconds",
		Help:      "Time to price one batch of contracts",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
	}, []string{"mode"})

	m.EngineContracts = m.newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_contracts_total",
		Help:      "Contracts priced by the engine",
	}, []string{"mode"})

	m.SurfaceQueries = m.newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "surface_queries_total",
		Help:      "Volatility surface lookups by outcome",
	}, []string{"result"})

	m.SurfaceSlices = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "surface_slices",
		Help:      "Maturity slices held by the volatility surface",
	})
	reg.MustRegister(m.SurfaceSlices)

	logger.Debug.Printf("📊 metrics registry initialized (namespace %s)", namespace)
	return m
}

func (m *Metrics) newCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

func (m *Metrics) newHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch implements engine.Observer
func (m *Metrics) ObserveBatch(mode engine.ExecutionMode, contracts int, elapsed time.Duration) {
	m.EngineBatchDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	m.EngineContracts.WithLabelValues(string(mode)).Add(float64(contracts))
}

// ObserveSurfaceQuery counts a surface lookup
func (m *Metrics) ObserveSurfaceQuery(found bool) {
	result := "hit"
	if !found {
		result = "empty"
	}
	m.SurfaceQueries.WithLabelValues(result).Inc()
}

// SetSurfaceSlices records the current slice count
func (m *Metrics) SetSurfaceSlices(n int) {
	m.SurfaceSlices.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records count and latency per mux route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tmpl, err := cr.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var _ engine.Observer = (*Metrics)(nil)
