// Package database is the SQLite metadata store behind the scan lifecycle.
//
// It holds four tables:
//   - scan_runs: one row per crawl, open until finalized exactly once
//   - staging_files: one scan's records between bulk load and delta computation
//   - files: the last finalized state of every root, keyed by (root, path)
//   - file_changes: the added/modified/deleted classification of each scan
//
// Either github.com/mattn/go-sqlite3 ("sqlite3") or modernc.org/sqlite
// ("sqlite") can back the store. Both are opened in WAL mode with a busy
// timeout, and timestamps are stored as RFC 3339 text in UTC.
package database
