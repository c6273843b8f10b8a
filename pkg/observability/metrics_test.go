package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CacheHit("stores")
	m.CacheHit("stores")
	m.CacheMiss("users")
	m.CacheError("get")
	m.CacheInvalidated(3, 7)
	m.Decision("users", false, "rank")
	m.Decision("users", true, "master")
	m.ContextLoaded(hierarchy.RoleGR, 10*time.Millisecond, nil)
	m.ContextLoaded(hierarchy.RoleNone, time.Millisecond, errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookups.WithLabelValues("stores", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("users", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheErrors.WithLabelValues("get")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CacheTagsFlushed))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.CacheKeysFlushed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decisions.WithLabelValues("users", "false", "rank")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ContextLoads.WithLabelValues("GR", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ContextLoads))
}

func TestMetrics_UpdatePoolStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m.UpdatePoolStats(db, nil)
	assert.Equal(t, float64(db.Stats().OpenConnections), testutil.ToFloat64(m.PoolConnections.WithLabelValues(PoolPostgres, "open")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PoolWaits.WithLabelValues(PoolPostgres)))

	// Nil dependencies are skipped.
	m.UpdatePoolStats(nil, nil)
	assert.Equal(t, 3, testutil.CollectAndCount(m.PoolConnections))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/v1/scope/{resource}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	router.Handle("/metrics", MetricsHandler(registry))

	for _, res := range []string{"stores", "users"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scope/"+res, nil))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/v1/scope/{resource}", "403")))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "orgscope_http_requests_total")
}
