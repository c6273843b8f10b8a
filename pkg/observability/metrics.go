package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orgscope"

// Pool label values for PoolConnections
const (
	PoolPostgres = "postgres"
	PoolRedis    = "redis"
)

// Metrics is the Prometheus instrumentation shared by the HTTP layer, the
// cache, the permission engine and the context provider
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	Decisions          *prometheus.CounterVec
	ContextLoads       *prometheus.CounterVec
	ContextLoadLatency *prometheus.HistogramVec

	CacheLookups     *prometheus.CounterVec
	CacheErrors      *prometheus.CounterVec
	CacheTagsFlushed prometheus.Counter
	CacheKeysFlushed prometheus.Counter

	// PoolConnections is labelled by pool (postgres, redis) and state
	PoolConnections *prometheus.GaugeVec
	PoolWaits       *prometheus.GaugeVec
}

// NewMetrics registers every collector on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)

	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route template and status",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "permission", Name: "decisions_total",
			Help: "Permission decisions by resource, outcome and deciding rule",
		}, []string{"resource", "allowed", "rule"}),
		ContextLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "context", Name: "loads_total",
			Help: "User context loads that missed the cache",
		}, []string{"role", "status"}),
		ContextLoadLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "context", Name: "load_duration_seconds",
			Help:    "Latency of uncached user context loads",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 9),
		}, []string{"role"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "Scoped cache lookups by resource and result (hit, miss)",
		}, []string{"resource", "result"}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "errors_total",
			Help: "Cache backend failures by operation",
		}, []string{"operation"}),
		CacheTagsFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "tags_invalidated_total",
			Help: "Tags invalidated after writes",
		}),
		CacheKeysFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "keys_invalidated_total",
			Help: "Entries removed by tag invalidation",
		}),

		PoolConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "connections",
			Help: "Connection pool size by pool and state (open, in_use, idle)",
		}, []string{"pool", "state"}),
		PoolWaits: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "waits",
			Help: "Cumulative number of times a caller waited for a connection",
		}, []string{"pool"}),
	}
}

func (m *Metrics) CacheHit(resource string) {
	m.CacheLookups.WithLabelValues(resource, "hit").Inc()
}

func (m *Metrics) CacheMiss(resource string) {
	m.CacheLookups.WithLabelValues(resource, "miss").Inc()
}

func (m *Metrics) CacheInvalidated(tags, keys int) {
	m.CacheTagsFlushed.Add(float64(tags))
	m.CacheKeysFlushed.Add(float64(keys))
}

func (m *Metrics) CacheError(operation string) {
	m.CacheErrors.WithLabelValues(operation).Inc()
}

// Decision counts one permission decision
func (m *Metrics) Decision(resource string, allowed bool, rule string) {
	m.Decisions.WithLabelValues(resource, strconv.FormatBool(allowed), rule).Inc()
}

// ContextLoaded observes one uncached context load. Failed loads are labelled
// with the role the caller had resolved so far, usually NONE.
func (m *Metrics) ContextLoaded(role hierarchy.Role, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ContextLoads.WithLabelValues(role.String(), status).Inc()
	m.ContextLoadLatency.WithLabelValues(role.String()).Observe(d.Seconds())
}

// UpdatePoolStats samples both connection pools. Nil pools are skipped.
func (m *Metrics) UpdatePoolStats(db *sql.DB, client *redis.Client) {
	if db != nil {
		s := db.Stats()
		m.setPool(PoolPostgres, s.OpenConnections, s.InUse, s.Idle)
		m.PoolWaits.WithLabelValues(PoolPostgres).Set(float64(s.WaitCount))
	}
	if client != nil {
		s := client.PoolStats()
		m.setPool(PoolRedis, int(s.TotalConns), int(s.TotalConns-s.IdleConns), int(s.IdleConns))
		m.PoolWaits.WithLabelValues(PoolRedis).Set(float64(s.Timeouts))
	}
}

func (m *Metrics) setPool(pool string, open, inUse, idle int) {
	m.PoolConnections.WithLabelValues(pool, "open").Set(float64(open))
	m.PoolConnections.WithLabelValues(pool, "in_use").Set(float64(inUse))
	m.PoolConnections.WithLabelValues(pool, "idle").Set(float64(idle))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the mux path template so /v1/users/{id} is one series
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware counts and times requests per route template
func HTTPMetricsMiddleware(m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.HTTPLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler exposes registry for scraping
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
