package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// StartScan allocates a new open scan run and returns its id.
func (d *Database) StartScan(ctx context.Context, root string, startedAt time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("start_scan", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	var res sql.Result
	res, err = d.db.ExecContext(ctx,
		`INSERT INTO scan_runs (scan_root, started_at) VALUES (?, ?)`,
		root, formatTime(startedAt))
	if err != nil {
		return 0, fmt.Errorf("insert scan run: %w", err)
	}

	var id int64
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read scan id: %w", err)
	}

	d.logger.Debug("Scan run allocated")
	return id, nil
}

// scanState returns the root of scanID and whether it is still open.
func scanState(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, scanID int64) (root string, open bool, err error) {
	var finished sql.NullString
	err = q.QueryRowContext(ctx,
		`SELECT scan_root, finished_at FROM scan_runs WHERE scan_id = ?`, scanID,
	).Scan(&root, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %d", ErrScanNotFound, scanID)
	}
	if err != nil {
		return "", false, err
	}
	return root, !finished.Valid, nil
}

// FinalizeScan writes the results of scanID, sets finished_at and makes
// the scan's staging rows the tracked state of its root. All of it happens
// in one transaction, so a scan that never finalizes leaves the baseline
// for the next scan untouched. A run can be finalized only once: a second
// call returns ErrScanNotOpen.
func (d *Database) FinalizeScan(ctx context.Context, scanID int64, p FinalizeParams) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finalize_scan", start, err) }()

	var meta []byte
	if p.Metadata != nil {
		meta, err = json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("encode scan metadata: %w", err)
		}
	}

	err = d.withTx(ctx, "finalize", func(tx *sql.Tx) error {
		root, open, err := scanState(ctx, tx, scanID)
		if err != nil {
			return err
		}
		if !open {
			return fmt.Errorf("%w: %d", ErrScanNotOpen, scanID)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE scan_runs SET
				finished_at = ?,
				total_paths_count = ?,
				added_files_count = ?,
				modified_files_count = ?,
				removed_files_count = ?,
				new_data_mb = ?,
				modified_data_mb = ?,
				deleted_data_mb = ?,
				scan_metadata = ?
			WHERE scan_id = ? AND finished_at IS NULL`,
			formatTime(p.FinishedAt),
			p.TotalPaths, p.Added, p.Modified, p.Removed,
			p.NewDataMB, p.ModifiedDataMB, p.DeletedDataMB,
			nullableString(meta),
			scanID,
		)
		if err != nil {
			return fmt.Errorf("update scan run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %d", ErrScanNotOpen, scanID)
		}

		if _, err := tx.ExecContext(ctx, deltaApply, root, scanID); err != nil {
			return fmt.Errorf("apply state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, deltaPrune, root, scanID); err != nil {
			return fmt.Errorf("prune deleted: %w", err)
		}
		return nil
	})
	return err
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

const scanRunColumns = `scan_id, scan_root, started_at, finished_at, total_paths_count,
	added_files_count, modified_files_count, removed_files_count,
	new_data_mb, modified_data_mb, deleted_data_mb, scan_metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*ScanRun, error) {
	var (
		run                             ScanRun
		startedAt                       string
		finishedAt, metadata            sql.NullString
		total, added, modified, removed sql.NullInt64
		newMB, modMB, delMB             sql.NullFloat64
	)
	if err := row.Scan(&run.ScanID, &run.ScanRoot, &startedAt, &finishedAt, &total,
		&added, &modified, &removed, &newMB, &modMB, &delMB, &metadata); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	run.TotalPathsCount = int64Ptr(total)
	run.AddedFilesCount = int64Ptr(added)
	run.ModifiedFilesCount = int64Ptr(modified)
	run.RemovedFilesCount = int64Ptr(removed)
	run.NewDataMB = float64Ptr(newMB)
	run.ModifiedDataMB = float64Ptr(modMB)
	run.DeletedDataMB = float64Ptr(delMB)

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &run.Metadata); err != nil {
			return nil, fmt.Errorf("decode scan metadata of scan %d: %w", run.ScanID, err)
		}
	}
	return &run, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

// GetScanRun returns one scan run or ErrScanNotFound.
func (d *Database) GetScanRun(ctx context.Context, scanID int64) (*ScanRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_scan_run", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var run *ScanRun
	run, err = scanRun(d.db.QueryRowContext(ctx,
		`SELECT `+scanRunColumns+` FROM scan_runs WHERE scan_id = ?`, scanID))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("%w: %d", ErrScanNotFound, scanID)
		return nil, err
	}
	return run, err
}

// ListScanRuns returns the most recent runs first. limit <= 0 means 50.
func (d *Database) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_scan_runs", start, err) }()

	if limit <= 0 {
		limit = 50
	}
	var runs []ScanRun
	runs, err = d.queryScanRuns(ctx,
		`SELECT `+scanRunColumns+` FROM scan_runs ORDER BY scan_id DESC LIMIT ?`, limit)
	return runs, err
}

// OpenScanRuns returns runs that were never finalized, oldest first.
func (d *Database) OpenScanRuns(ctx context.Context) ([]ScanRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("open_scan_runs", start, err) }()

	var runs []ScanRun
	runs, err = d.queryScanRuns(ctx,
		`SELECT `+scanRunColumns+` FROM scan_runs WHERE finished_at IS NULL ORDER BY scan_id`)
	return runs, err
}

func (d *Database) queryScanRuns(ctx context.Context, query string, args ...any) ([]ScanRun, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan runs: %w", err)
	}
	defer rows.Close()

	runs := []ScanRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan runs: %w", err)
	}
	return runs, nil
}
