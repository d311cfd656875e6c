// Package metrics provides Prometheus instrumentation for the delta tracker.
//
// All metrics are prefixed with "fs_delta_" and registered on the default
// registry through promauto, so importing the package is enough to expose
// them on /metrics.
//
// # Metric Categories
//
// ## Crawl
//
//   - CrawlRunsTotal, CrawlIsRunning: crawls started and in flight
//   - CrawlRecordsTotal: records emitted across all crawls
//   - CrawlEntriesSkipped: entries skipped by reason (not_regular, unreadable, walk_error)
//   - CrawlLastDuration, CrawlLastRecords, CrawlFilesPerSecond: last completed crawl
//
// ## Scan lifecycle
//
//   - ScansTotal: runs by outcome (finalized, failed)
//   - ScanPhaseDuration: histogram per phase
//   - ScanLastChanges, ScanLastChangeBytes: last finalized delta per change type
//   - ScanCleanupFailures: staging purge or artifact removal failures
//
// ## Store
//
//   - DBQueryTotal, DBQueryDuration, DBTransactionDuration, DBStagingRowsLoaded
//   - TrackedFilesTotal, ScanRunsStored, DBConnectionsOpen (refreshed by
//     Collector and on every scrape through RecordStats)
//
// ## Filesystem
//
// Retry metrics for NFS stale handles, recorded by a FilesystemObserver. The
// observer also keeps process totals that commands log when they finish.
//
// ## HTTP
//
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// Call InitializeMetrics once at startup so every label combination is
// exported from the first scrape.
package metrics
