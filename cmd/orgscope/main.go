package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/platinummonkey/orgscope/pkg/api"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/authz"
	"github.com/platinummonkey/orgscope/pkg/config"
	"github.com/platinummonkey/orgscope/pkg/observability"
	"github.com/platinummonkey/orgscope/pkg/orgtree"
	"github.com/platinummonkey/orgscope/pkg/permission"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/platinummonkey/orgscope/pkg/usercontext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("orgscope exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := cfg.Observability.OTel
	otelCfg.ServiceVersion = version
	telemetry, err := observability.InitOTel(ctx, otelCfg, log)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to postgres")

	policy := scopedcache.DefaultTTLPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = config.LoadPolicyFile(cfg.PolicyFile); err != nil {
			return err
		}
	}

	backend, redisClient, err := openBackend(ctx, cfg.Cache, policy)
	if err != nil {
		return err
	}
	log.WithField("backend", cfg.Cache.Backend).Info("cache backend ready")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	cache, err := scopedcache.New(backend, policy, log, metrics)
	if err != nil {
		return err
	}
	defer cache.Close()

	if cfg.PolicyFile != "" {
		go func() {
			defer observability.RecoverPanic(log, "policy watcher")
			if err := config.WatchPolicyFile(ctx, cfg.PolicyFile, log, cache.SetPolicy); err != nil {
				log.WithError(err).Error("policy watcher stopped")
			}
		}()
	}

	auditLogger, err := openAudit(ctx, db, cfg.Audit, log)
	if err != nil {
		return err
	}

	tree := orgtree.NewIndex(orgtree.NewSQLSource(db), log)
	contexts := usercontext.NewProvider(usercontext.NewSQLStore(db), tree, log,
		usercontext.WithCache(cache),
		usercontext.WithTTL(cfg.Cache.ContextTTL),
		usercontext.WithLoadObserver(metrics),
	)

	engine, err := authz.NewEngine(authz.Deps{
		DB:         db,
		Tree:       tree,
		Contexts:   contexts,
		Cache:      cache,
		Dependents: permission.NewSQLDependencyCounter(db),
		Audit:      auditLogger,
		Decisions:  metrics,
		Log:        log,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(engine, log)
	server.Use(observability.HTTPMetricsMiddleware(metrics))
	server.RegisterRoutes(observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		server.Handle("/metrics", observability.MetricsHandler(registry))
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Observability.PoolStatsSchedule, func() {
		defer observability.RecoverPanic(log, "pool stats job")
		metrics.UpdatePoolStats(db, redisClient)
	}); err != nil {
		return fmt.Errorf("invalid pool stats schedule: %w", err)
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(server, "orgscope"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.OnShutdown("telemetry", telemetry.Shutdown)
	shutdown.OnShutdown("audit", func(context.Context) error {
		return auditLogger.Close()
	})
	shutdown.OnShutdown("background jobs", func(ctx context.Context) error {
		cancel()
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"version": version,
		}).Info("starting orgscope")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
			serveErr <- err
			cancel()
		}
	}()

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func openBackend(ctx context.Context, cfg config.CacheConfig, policy scopedcache.TTLPolicy) (scopedcache.Backend, *redis.Client, error) {
	// Entries never outlive maxTTL; tag sets are kept twice as long.
	maxTTL := policy.MaxTTL()
	if cfg.ContextTTL > maxTTL {
		maxTTL = cfg.ContextTTL
	}

	if cfg.Backend == config.CacheBackendMemory {
		return scopedcache.NewMemoryBackend(cfg.MemoryMaxEntries, 2*maxTTL, policy.PopularityWindow), nil, nil
	}

	client, err := scopedcache.DialRedis(ctx, scopedcache.RedisOptions{
		URL:        cfg.RedisURL,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		MaxRetries: cfg.RedisMaxRetries,
		PoolSize:   cfg.RedisPoolSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return scopedcache.NewRedisBackend(client, cfg.Namespace, 2*maxTTL, policy.PopularityWindow), client, nil
}

func openAudit(ctx context.Context, db *sql.DB, cfg config.AuditConfig, log *logrus.Logger) (audit.Logger, error) {
	var loggers []audit.Logger
	if cfg.Log {
		loggers = append(loggers, audit.NewLogrusLogger(log))
	}
	if cfg.FileDir != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			Dir:      filepath.Clean(cfg.FileDir),
			MaxBytes: cfg.FileMaxBytes,
			MaxFiles: cfg.FileMaxFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		loggers = append(loggers, fileLogger)
	}
	if cfg.Database {
		dbLogger, err := audit.NewDBLogger(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit table: %w", err)
		}
		loggers = append(loggers, dbLogger)
	}
	if len(loggers) == 0 {
		return audit.NoOp(), nil
	}

	if cfg.Async {
		return audit.NewAsyncMultiLogger(cfg.QueueSize, log, loggers...), nil
	}
	return audit.NewMultiLogger(loggers...), nil
}
