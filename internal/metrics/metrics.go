package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_delta_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_delta_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_delta_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"type"}, // "load", "delta", "commit", "rollback"
	)

	DBStagingRowsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_delta_db_staging_rows_loaded_total",
			Help: "Total number of staging rows bulk-loaded",
		},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Crawl metrics
var (
	CrawlRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_delta_crawl_runs_total",
			Help: "Total number of crawls started",
		},
	)

	CrawlIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_crawl_running",
			Help: "Number of crawls currently in progress",
		},
	)

	CrawlRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_delta_crawl_records_total",
			Help: "Total number of file records emitted by crawls",
		},
	)

	CrawlEntriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_crawl_entries_skipped_total",
			Help: "Entries skipped during traversal by reason",
		},
		[]string{"reason"}, // "not_regular", "unreadable", "walk_error"
	)

	CrawlLastDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_crawl_last_duration_seconds",
			Help: "Duration of the last completed crawl in seconds",
		},
	)

	CrawlFilesPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_crawl_files_per_second",
			Help: "Overall throughput of the last completed crawl",
		},
	)

	CrawlLastRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_crawl_last_records",
			Help: "Records written by the last completed crawl",
		},
	)
)

// Scan lifecycle metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_scans_total",
			Help: "Scan runs by outcome",
		},
		[]string{"outcome"}, // "finalized", "failed"
	)

	ScanPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_delta_scan_phase_duration_seconds",
			Help:    "Duration of each scan lifecycle phase",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 14400},
		},
		[]string{"phase"},
	)

	ScanLastChanges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fs_delta_scan_last_changes",
			Help: "Changed file count of the last finalized scan by change type",
		},
		[]string{"change_type"},
	)

	ScanLastChangeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fs_delta_scan_last_change_bytes",
			Help: "Size delta in bytes of the last finalized scan by change type",
		},
		[]string{"change_type"},
	)

	ScanLastFinishedTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_scan_last_finished_timestamp_seconds",
			Help: "Unix timestamp of the last finalized scan",
		},
	)

	ScanCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_delta_scan_cleanup_failures_total",
			Help: "Non-fatal cleanup failures after finalize",
		},
	)
)

// Store contents, refreshed by the Collector
var (
	TrackedFilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_delta_tracked_files",
			Help: "Files in the last finalized state across all roots",
		},
	)

	ScanRunsStored = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fs_delta_scan_runs",
			Help: "Stored scan runs by state",
		},
		[]string{"state"}, // "open", "finalized"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_delta_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after stale file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_delta_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_delta_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retry-wrapped filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fs_delta_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
