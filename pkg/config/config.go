package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/orgscope/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Observability ObservabilityConfig

	// PolicyFile is an optional YAML file overriding the cache TTL policy.
	// It is watched and reloaded on change.
	PolicyFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// CacheConfig holds scoped cache settings
type CacheConfig struct {
	Backend string

	// Redis backend
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	Namespace       string

	// Memory backend
	MemoryMaxEntries int

	// ContextTTL is the lifetime of cached user contexts
	ContextTTL time.Duration
}

// AuditConfig selects audit destinations. Several may be enabled at once.
type AuditConfig struct {
	Log          bool
	FileDir      string
	FileMaxBytes int64
	FileMaxFiles int
	Database     bool
	Async        bool
	QueueSize    int
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	// PoolStatsSchedule is the cron spec for refreshing pool gauges
	PoolStatsSchedule string

	// OTel exports traces and metrics over OTLP; off by default
	OTel observability.OTelConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
		PolicyFile:    getEnv("ORGSCOPE_POLICY_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ORGSCOPE_HOST", "0.0.0.0"),
		Port:            getEnv("ORGSCOPE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ORGSCOPE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ORGSCOPE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ORGSCOPE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ORGSCOPE_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("ORGSCOPE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("ORGSCOPE_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns:    getEnvInt("ORGSCOPE_POSTGRES_MIN_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("ORGSCOPE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:          strings.ToLower(getEnv("ORGSCOPE_CACHE_BACKEND", CacheBackendRedis)),
		RedisURL:         getEnv("ORGSCOPE_REDIS_URL", "redis://localhost:6379"),
		RedisPassword:    getEnv("ORGSCOPE_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("ORGSCOPE_REDIS_DB", -1),
		RedisMaxRetries:  getEnvInt("ORGSCOPE_REDIS_MAX_RETRIES", 3),
		RedisPoolSize:    getEnvInt("ORGSCOPE_REDIS_POOL_SIZE", 10),
		Namespace:        getEnv("ORGSCOPE_CACHE_NAMESPACE", "orgscope"),
		MemoryMaxEntries: getEnvInt("ORGSCOPE_MEMORY_CACHE_ENTRIES", 10000),
		ContextTTL:       getEnvDuration("ORGSCOPE_CONTEXT_TTL", time.Hour),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Log:          getEnvBool("ORGSCOPE_AUDIT_LOG", true),
		FileDir:      getEnv("ORGSCOPE_AUDIT_DIR", ""),
		FileMaxBytes: getEnvInt64("ORGSCOPE_AUDIT_MAX_BYTES", 100*1024*1024),
		FileMaxFiles: getEnvInt("ORGSCOPE_AUDIT_MAX_FILES", 10),
		Database:     getEnvBool("ORGSCOPE_AUDIT_DB", false),
		Async:        getEnvBool("ORGSCOPE_AUDIT_ASYNC", false),
		QueueSize:    getEnvInt("ORGSCOPE_AUDIT_QUEUE_SIZE", 1024),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:          strings.ToLower(getEnv("ORGSCOPE_LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("ORGSCOPE_LOG_FORMAT", observability.FormatJSON)),
		MetricsEnabled:    getEnvBool("ORGSCOPE_METRICS_ENABLED", true),
		PoolStatsSchedule: getEnv("ORGSCOPE_POOL_STATS_SCHEDULE", "@every 15s"),
		OTel: observability.OTelConfig{
			Enabled:     getEnvBool("ORGSCOPE_OTEL_ENABLED", false),
			Endpoint:    getEnv("ORGSCOPE_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName: getEnv("ORGSCOPE_OTEL_SERVICE_NAME", "orgscope"),
			Insecure:    getEnvBool("ORGSCOPE_OTEL_INSECURE", true),
			SampleRatio: getEnvFloat("ORGSCOPE_OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("postgres min connections (%d) exceeds max connections (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Cache.Backend {
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache backend")
		}
	case CacheBackendMemory:
		if c.Cache.MemoryMaxEntries <= 0 {
			return fmt.Errorf("memory cache size must be positive")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be redis or memory)", c.Cache.Backend)
	}
	if c.Cache.ContextTTL <= 0 {
		return fmt.Errorf("context TTL must be positive")
	}

	if c.Audit.FileDir != "" && c.Audit.FileMaxBytes <= 0 {
		return fmt.Errorf("audit file size limit must be positive")
	}

	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}
	if otelCfg := c.Observability.OTel; otelCfg.Enabled {
		if otelCfg.Endpoint == "" {
			return fmt.Errorf("otel endpoint is required when otel is enabled")
		}
		if otelCfg.SampleRatio < 0 || otelCfg.SampleRatio > 1 {
			return fmt.Errorf("otel sample ratio must be between 0 and 1, got %v", otelCfg.SampleRatio)
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
