// Command fs-delta records what changed on a filesystem between scans.
//
// Each scan run crawls a root directory with a pool of traversal workers,
// streams one record per regular file to a staging artifact, bulk-loads the
// artifact into SQLite and classifies every path as added, modified or
// deleted against the previous finalized scan of the same root. The run is
// then finalized with its change counts and data volumes.
//
// # Usage
//
//	fs-delta init-db
//	fs-delta scan --data-root /srv/data
//	fs-delta report list
//	fs-delta report show 42 --changes modified
//	fs-delta serve --listen-addr :8080
//
// The lifecycle can also be split across hosts or jobs:
//
//	id=$(fs-delta start-scan --data-root /srv/data)
//	fs-delta crawl --scan-id "$id"
//	fs-delta finish-scan --scan-id "$id"
//
// # Configuration
//
// Flags override environment variables, which override an optional config
// file (--config) and the defaults. The main variables are DATA_ROOT,
// DATABASE_PATH, DATABASE_DRIVER, STAGING_DIR, PROGRESS_INTERVAL,
// CRAWL_WORKERS, CRAWL_RATE_LIMIT, LOG_LEVEL and LOG_FILE. TRACE_EXPORTER
// enables OpenTelemetry tracing and INFLUXDB_URL with INFLUXDB_TOKEN enables
// export of finalized scans to InfluxDB.
//
// # Memory
//
// Inside containers set MEMORY_LIMIT (bytes) so GOMEMLIMIT is derived from
// it, or set GOMEMLIMIT directly.
package main
