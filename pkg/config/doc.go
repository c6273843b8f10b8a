// Package config loads application configuration from environment variables
// and the cache TTL policy from an optional YAML file.
//
// # Environment
//
// Server settings:
//
//	ORGSCOPE_HOST="0.0.0.0"
//	ORGSCOPE_PORT="8080"
//	ORGSCOPE_READ_TIMEOUT="15s"
//	ORGSCOPE_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	ORGSCOPE_POSTGRES_URL="postgres://localhost/orgscope?sslmode=disable"  # required
//	ORGSCOPE_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	ORGSCOPE_CACHE_BACKEND="redis"  # redis, memory
//	ORGSCOPE_REDIS_URL="redis://localhost:6379"
//	ORGSCOPE_CACHE_NAMESPACE="orgscope"
//	ORGSCOPE_CONTEXT_TTL="1h"
//
// Audit settings:
//
//	ORGSCOPE_AUDIT_LOG="true"
//	ORGSCOPE_AUDIT_DIR="/var/log/orgscope/audit"
//	ORGSCOPE_AUDIT_DB="false"
//	ORGSCOPE_AUDIT_ASYNC="true"
//	ORGSCOPE_AUDIT_QUEUE_SIZE="1024"
//
// Observability settings:
//
//	ORGSCOPE_LOG_LEVEL="info"
//	ORGSCOPE_LOG_FORMAT="json"  # json, text
//	ORGSCOPE_POOL_STATS_SCHEDULE="@every 15s"
//
// # Policy File
//
// ORGSCOPE_POLICY_FILE points at a YAML file overriding the TTL policy:
//
//	short: 5m
//	medium: 15m
//	default_long: 30m
//	long:
//	  stores: 60m
//	  users: 30m
//	warm_threshold: 5
//	hot_threshold: 20
//
// WatchPolicyFile reloads it on change.
package config
