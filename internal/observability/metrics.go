package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/rollup-backend/internal/denorm"
)

// Metrics owns every Prometheus collector the service exports. One instance
// is built at wire time and threaded to the places that observe.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	rollupBatches    *prometheus.CounterVec
	rollupDeltas     *prometheus.CounterVec
	recomputeRuns    *prometheus.CounterVec
	recomputeLatency prometheus.Histogram

	jobRuns    *prometheus.CounterVec
	jobLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_api_requests_total",
			Help: "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_api_request_seconds",
			Help:    "API request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rollup_api_inflight_requests",
			Help: "API requests currently being served.",
		}),
		rollupBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_adjustment_batches_total",
			Help: "Applied incremental adjustment batches by triggering table.",
		}, []string{"table"}),
		rollupDeltas: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_adjustment_deltas_total",
			Help: "Applied column deltas by parent table and column.",
		}, []string{"table", "column"}),
		recomputeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_recompute_runs_total",
			Help: "Full recomputations by parent table and outcome.",
		}, []string{"table", "status"}),
		recomputeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollup_recompute_seconds",
			Help:    "Wall time of one parent recomputation.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_job_runs_total",
			Help: "Background job executions by type and outcome.",
		}, []string{"job_type", "status"}),
		jobLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_job_seconds",
			Help:    "Background job execution time by type.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"job_type"}),
	}
}

// Handler serves the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// GinMiddleware records request counts, latency and inflight gauge per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.apiInflight.Inc()
		c.Next()
		m.apiInflight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.apiRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.apiLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// AdjustmentObserver plugs into the denorm plugin and counts what it applied.
func (m *Metrics) AdjustmentObserver() func(table string, adjs []denorm.Adjustment) {
	return func(table string, adjs []denorm.Adjustment) {
		m.rollupBatches.WithLabelValues(table).Inc()
		for _, adj := range adjs {
			for col := range adj.Deltas {
				m.rollupDeltas.WithLabelValues(adj.Parent.Table, col).Inc()
			}
		}
	}
}

func (m *Metrics) ObserveRecompute(table string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.recomputeRuns.WithLabelValues(table, status).Inc()
	m.recomputeLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJob(jobType, status string, elapsed time.Duration) {
	m.jobRuns.WithLabelValues(jobType, status).Inc()
	m.jobLatency.WithLabelValues(jobType).Observe(elapsed.Seconds())
}
