package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/orgscope/pkg/httputil"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ErrDegraded marks a probe failure that leaves the dependency usable
var ErrDegraded = errors.New("degraded")

// Probe checks one dependency. A failing critical probe makes the service
// unhealthy; a failing optional probe, or any probe returning ErrDegraded,
// only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// DatabaseProbe pings Postgres, runs a trivial query and reports an
// exhausted pool as degraded
func DatabaseProbe(db *sql.DB) Probe {
	return Probe{
		Name:     "database",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if s := db.Stats(); s.MaxOpenConnections > 0 && s.InUse >= s.MaxOpenConnections {
				return fmt.Errorf("connection pool exhausted: %w", ErrDegraded)
			}
			return nil
		},
	}
}

// RedisProbe pings the cache. Reads recompute without it, so it is optional.
func RedisProbe(client *redis.Client) Probe {
	return Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of one probe
type DependencyStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// HealthChecker runs probes for the readiness endpoint
type HealthChecker struct {
	probes  []Probe
	version string
	timeout time.Duration
}

// NewHealthChecker creates a checker probing db and, when non-nil, the Redis
// client behind the cache
func NewHealthChecker(db *sql.DB, client *redis.Client, version string) *HealthChecker {
	h := &HealthChecker{version: version, timeout: 5 * time.Second}
	if db != nil {
		h.AddProbe(DatabaseProbe(db))
	}
	if client != nil {
		h.AddProbe(RedisProbe(client))
	}
	return h
}

// AddProbe registers an additional probe
func (h *HealthChecker) AddProbe(p Probe) {
	h.probes = append(h.probes, p)
}

// Check runs every probe concurrently and folds the results
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	results := make([]DependencyStatus, len(h.probes))

	var g errgroup.Group
	for i, p := range h.probes {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			err := p.Check(ctx)
			results[i] = DependencyStatus{
				Status:    probeStatus(p, err),
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				results[i].Message = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}
	for i, p := range h.probes {
		r := results[i]
		status.Dependencies[p.Name] = r
		switch {
		case r.Status == StatusUnhealthy && p.Critical:
			status.Status = StatusUnhealthy
		case r.Status != StatusHealthy && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

func probeStatus(p Probe, err error) string {
	switch {
	case err == nil:
		return StatusHealthy
	case errors.Is(err, ErrDegraded):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Liveness reports that the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness runs the probes and answers 503 when a critical one fails
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, status)
}

// RegisterRoutes registers /health, /health/live and /health/ready
func (h *HealthChecker) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Readiness).Methods(http.MethodGet)
}
