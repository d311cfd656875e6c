// Package startup handles configuration loading and the startup and
// shutdown log sections of every command.
//
// # Configuration
//
// [LoadConfig] layers, from highest to lowest priority, values set on the
// viper instance (bound command-line flags), environment variables, an
// optional config file named by the "config" key (YAML, TOML, JSON or .env
// by extension) and defaults. Every key is also read from its upper-case
// environment variable:
//
//   - DATA_ROOT: directory tree to scan
//   - DATABASE_PATH: SQLite file (default: data/fs-delta.db)
//   - DATABASE_DRIVER: sqlite3 (mattn, default) or sqlite (modernc)
//   - LOG_FILE: JSON log file (default: logs/app.log)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - PROGRESS_INTERVAL: crawl progress period, duration or seconds (default: 30s)
//   - CRAWL_WORKERS: lstat workers (default: sized for I/O-bound work, max 32)
//   - CRAWL_RATE_LIMIT: maximum files per second, 0 for unlimited
//   - STAGING_DIR: where staging artifacts are written (default: os.TempDir())
//   - KEEP_FAILED_STAGING: keep the artifact of a failed scan (default: true)
//   - LISTEN_ADDR: reporting API address (default: :8080)
//   - METRICS_ENABLED: serve /metrics (default: true)
//   - LOG_HEALTH_CHECKS: log /health and /livez requests (default: false)
//   - TRACE_EXPORTER: none, stdout or otlp (default: none)
//   - OTLP_ENDPOINT: OTLP gRPC receiver (default: localhost:4317)
//   - INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET: scan export
//   - HOSTNAME: host recorded in run metadata
//
// # Build Information
//
// Version, Commit and BuildTime are injected with -ldflags:
//
//	go build -ldflags "-X fs-delta-tracker/internal/startup.Version=1.0.0"
package startup
