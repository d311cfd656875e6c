package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver (cgo)
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"fs-delta-tracker/internal/metrics"
)

// Supported database/sql driver names.
const (
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3
	DriverSQLite  = "sqlite"  // modernc.org/sqlite
)

// CurrentSchemaVersion is stored in the metadata table by initialize.
const CurrentSchemaVersion = 1

// Default timeout for short database operations
const defaultTimeout = 5 * time.Second

// Options configures New.
type Options struct {
	// Path is the database file. Its parent directory is created if missing.
	Path string
	// Driver is DriverSQLite3 (default) or DriverSQLite.
	Driver string
	Logger *zap.Logger
}

// Database is the metadata store: scan runs, the per-scan staging area, the
// last finalized file state per root and the classified changes of each scan.
type Database struct {
	db     *sql.DB
	dbPath string
	driver string
	logger *zap.Logger

	// serializes write transactions; SQLite allows one writer at a time
	mu sync.Mutex
}

// New opens (creating if needed) the database and applies the schema.
func New(ctx context.Context, opts Options) (*Database, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite3
	}
	if opts.Path == "" {
		return nil, errors.New("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	logger.Info("Opening database",
		zap.String("path", filepath.Base(opts.Path)),
		zap.String("driver", driver))

	if err := diagnoseDatabasePermissions(opts.Path, logger); err != nil {
		logger.Warn("Database permission diagnostics", zap.Error(err))
	}

	connStr, err := dsn(driver, opts.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: opts.Path,
		driver: driver,
		logger: logger,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database after initialization failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return d, nil
}

// dsn builds a connection string that enables WAL and a busy timeout on
// every pooled connection.
func dsn(driver, path string) (string, error) {
	switch driver {
	case DriverSQLite3:
		return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path), nil
	case DriverSQLite:
		return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_runs (
	scan_id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_root TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	total_paths_count INTEGER,
	added_files_count INTEGER,
	modified_files_count INTEGER,
	removed_files_count INTEGER,
	new_data_mb REAL,
	modified_data_mb REAL,
	deleted_data_mb REAL,
	scan_metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_root ON scan_runs(scan_root, scan_id);
CREATE INDEX IF NOT EXISTS idx_scan_runs_open ON scan_runs(finished_at) WHERE finished_at IS NULL;

CREATE TABLE IF NOT EXISTS staging_files (
	scan_id INTEGER NOT NULL,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size_bytes INTEGER NOT NULL,
	file_mtime TEXT NOT NULL,
	PRIMARY KEY (scan_id, file_path)
);

CREATE TABLE IF NOT EXISTS files (
	scan_root TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size_bytes INTEGER NOT NULL,
	file_mtime TEXT NOT NULL,
	first_seen_scan_id INTEGER NOT NULL,
	last_seen_scan_id INTEGER NOT NULL,
	PRIMARY KEY (scan_root, file_path)
);

CREATE TABLE IF NOT EXISTS file_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id INTEGER NOT NULL REFERENCES scan_runs(scan_id),
	file_path TEXT NOT NULL,
	change_type TEXT NOT NULL CHECK (change_type IN ('added', 'modified', 'deleted')),
	old_size_bytes INTEGER,
	new_size_bytes INTEGER,
	old_mtime TEXT,
	new_mtime TEXT
);

CREATE INDEX IF NOT EXISTS idx_file_changes_scan ON file_changes(scan_id, change_type);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	err = d.runMigrations(ctx)
	return err
}

// runMigrations upgrades databases created by earlier schema versions.
func (d *Database) runMigrations(ctx context.Context) error {
	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current >= CurrentSchemaVersion {
		return nil
	}

	// Version 0 databases predate the metadata table and lack scan_metadata.
	var hasMetadata bool
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('scan_runs')
		WHERE name = 'scan_metadata'
	`).Scan(&hasMetadata)
	if err != nil {
		return fmt.Errorf("failed to check for scan_metadata column: %w", err)
	}
	if !hasMetadata {
		d.logger.Info("Migrating database: adding scan_metadata column to scan_runs")
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE scan_runs ADD COLUMN scan_metadata TEXT`); err != nil {
			return fmt.Errorf("failed to add scan_metadata column: %w", err)
		}
	}

	return d.SetMetadata(ctx, metaSchemaVersion, fmt.Sprint(CurrentSchemaVersion))
}

// InitSchema creates any missing tables. New already calls it.
func (d *Database) InitSchema(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialize(ctx)
}

// Reset drops every table and recreates an empty schema.
func (d *Database) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Warn("Dropping all scan history")
	_, err := d.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS file_changes;
		DROP TABLE IF EXISTS staging_files;
		DROP TABLE IF EXISTS files;
		DROP TABLE IF EXISTS scan_runs;
		DROP TABLE IF EXISTS metadata;
	`)
	if err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return d.initialize(ctx)
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Driver returns the database/sql driver in use.
func (d *Database) Driver() string {
	return d.driver
}

// Ping checks connectivity for health endpoints.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// withTx runs fn inside a write transaction, committing on success and
// rolling back on error. kind labels the transaction duration metric.
func (d *Database) withTx(ctx context.Context, kind string, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	txStart := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
		return fmt.Errorf("commit: %w", err)
	}
	metrics.DBTransactionDuration.WithLabelValues(kind).Observe(time.Since(txStart).Seconds())
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(txStart).Seconds())
	return nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string, logger *zap.Logger) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logger.Debug("Database directory", zap.String("dir", dir), zap.Stringer("mode", dirInfo.Mode()))

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logger.Warn("Database file is read-only, writes will fail",
				zap.String("file", filepath.Base(p)), zap.Stringer("mode", info.Mode()))
			if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
				logger.Error("Failed to fix database file permissions", zap.Error(chmodErr))
			}
		}
	}

	return nil
}
