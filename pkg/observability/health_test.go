package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(db, client, "v1.2.3").Check(ctx)
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "v1.2.3", status.Version)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database down", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		status := NewHealthChecker(db, nil, "").Check(ctx)
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["database"].Message, "connection refused")
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(nil, client, "").Check(ctx)
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("degraded probe", func(t *testing.T) {
		h := NewHealthChecker(nil, nil, "")
		h.AddProbe(Probe{Name: "pool", Critical: true, Check: func(context.Context) error {
			return fmt.Errorf("connection pool exhausted: %w", ErrDegraded)
		}})
		h.AddProbe(Probe{Name: "ok", Critical: true, Check: func(context.Context) error { return nil }})

		status := h.Check(ctx)
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusDegraded, status.Dependencies["pool"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["ok"].Status)
	})

	t.Run("critical failure wins over degraded", func(t *testing.T) {
		h := NewHealthChecker(nil, nil, "")
		h.AddProbe(Probe{Name: "cache", Check: func(context.Context) error { return errors.New("timeout") }})
		h.AddProbe(Probe{Name: "store", Critical: true, Check: func(context.Context) error { return errors.New("refused") }})

		status := h.Check(ctx)
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "refused", status.Dependencies["store"].Message)
	})

	t.Run("no probes", func(t *testing.T) {
		status := NewHealthChecker(nil, nil, "").Check(ctx)
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Empty(t, status.Dependencies)
	})
}

func TestHealthRoutes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	router := mux.NewRouter()
	NewHealthChecker(db, nil, "dev").RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Equal(t, StatusUnhealthy, status.Status)
}
