// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown.
//
// # Structured Logging
//
//	log, err := observability.NewLogger("info", "json", os.Stdout)
//	observability.FromContext(ctx, log).Info("request handled")
//
// # Prometheus Metrics
//
// Metrics implements the recorder interfaces of the cache, the permission
// engine and the context provider, so one value is passed to each of them:
//
//	metrics := observability.NewMetrics(registry)
//	cache, err := scopedcache.New(backend, policy, log, metrics)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Connection pool gauges are refreshed by calling UpdatePoolStats on a
// schedule.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	checker.RegisterRoutes(router)
//
// Probes run concurrently. The database probe is critical for readiness; a
// Redis outage or an exhausted pool reports degraded. More probes can be
// added with AddProbe.
package observability
