package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// The delta statements are plain parameterized SQL. Every value, including
// the scan root, is bound rather than spliced into the text.
const (
	deltaClearChanges = `DELETE FROM file_changes WHERE scan_id = ?`

	deltaAdded = `
		INSERT INTO file_changes (scan_id, file_path, change_type, old_size_bytes, new_size_bytes, old_mtime, new_mtime)
		SELECT s.scan_id, s.file_path, 'added', NULL, s.file_size_bytes, NULL, s.file_mtime
		FROM staging_files s
		WHERE s.scan_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM files f WHERE f.scan_root = ? AND f.file_path = s.file_path
		  )`

	deltaModified = `
		INSERT INTO file_changes (scan_id, file_path, change_type, old_size_bytes, new_size_bytes, old_mtime, new_mtime)
		SELECT s.scan_id, s.file_path, 'modified', f.file_size_bytes, s.file_size_bytes, f.file_mtime, s.file_mtime
		FROM staging_files s
		JOIN files f ON f.scan_root = ? AND f.file_path = s.file_path
		WHERE s.scan_id = ?
		  AND (f.file_size_bytes <> s.file_size_bytes OR f.file_mtime <> s.file_mtime)`

	deltaDeleted = `
		INSERT INTO file_changes (scan_id, file_path, change_type, old_size_bytes, new_size_bytes, old_mtime, new_mtime)
		SELECT ?, f.file_path, 'deleted', f.file_size_bytes, NULL, f.file_mtime, NULL
		FROM files f
		WHERE f.scan_root = ?
		  AND NOT EXISTS (
			SELECT 1 FROM staging_files s WHERE s.scan_id = ? AND s.file_path = f.file_path
		  )`

	deltaApply = `
		INSERT INTO files (scan_root, file_path, file_name, file_type, file_size_bytes, file_mtime,
			first_seen_scan_id, last_seen_scan_id)
		SELECT ?, s.file_path, s.file_name, s.file_type, s.file_size_bytes, s.file_mtime, s.scan_id, s.scan_id
		FROM staging_files s
		WHERE s.scan_id = ?
		ON CONFLICT (scan_root, file_path) DO UPDATE SET
			file_name = excluded.file_name,
			file_type = excluded.file_type,
			file_size_bytes = excluded.file_size_bytes,
			file_mtime = excluded.file_mtime,
			last_seen_scan_id = excluded.last_seen_scan_id`

	deltaPrune = `DELETE FROM files WHERE scan_root = ? AND last_seen_scan_id <> ?`
)

// ComputeDelta classifies every path of scanID against the last finalized
// state of the same root as added, modified or deleted. Only the scan's
// change set is written; the tracked file state moves in FinalizeScan. It
// can therefore be repeated on an open scan and yields the same result
// each time.
func (d *Database) ComputeDelta(ctx context.Context, scanID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("compute_delta", start, err) }()

	err = d.withTx(ctx, "delta", func(tx *sql.Tx) error {
		root, open, err := scanState(ctx, tx, scanID)
		if err != nil {
			return err
		}
		if !open {
			return fmt.Errorf("%w: %d", ErrScanNotOpen, scanID)
		}

		steps := []struct {
			name  string
			query string
			args  []any
		}{
			{"clear changes", deltaClearChanges, []any{scanID}},
			{"classify added", deltaAdded, []any{scanID, root}},
			{"classify modified", deltaModified, []any{root, scanID}},
			{"classify deleted", deltaDeleted, []any{scanID, root, scanID}},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
				return fmt.Errorf("%s: %w", step.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.Info("Delta computed",
		zap.Int64("scan_id", scanID),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ChangeTotals returns count and byte delta per change type for scanID.
// Every category is present; those without changes are zero.
func (d *Database) ChangeTotals(ctx context.Context, scanID int64) (map[ChangeType]ChangeTotal, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("change_totals", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	totals := make(map[ChangeType]ChangeTotal, len(ChangeTypes))
	for _, ct := range ChangeTypes {
		totals[ct] = ChangeTotal{}
	}

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `
		SELECT change_type,
		       COUNT(*),
		       COALESCE(SUM(ABS(COALESCE(new_size_bytes, 0) - COALESCE(old_size_bytes, 0))), 0)
		FROM file_changes
		WHERE scan_id = ?
		GROUP BY change_type`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query change totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ct    string
			total ChangeTotal
		)
		if err = rows.Scan(&ct, &total.Count, &total.Bytes); err != nil {
			return nil, fmt.Errorf("scan change totals: %w", err)
		}
		totals[ChangeType(ct)] = total
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change totals: %w", err)
	}
	return totals, nil
}

// ListChanges returns classified paths of scanID ordered by path. An empty
// changeType returns every category. limit <= 0 means 1000.
func (d *Database) ListChanges(ctx context.Context, scanID int64, changeType ChangeType, limit int) ([]FileChange, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_changes", start, err) }()

	if changeType != "" && !changeType.Valid() {
		err = fmt.Errorf("unknown change type %q", changeType)
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `
		SELECT scan_id, file_path, change_type, old_size_bytes, new_size_bytes, old_mtime, new_mtime
		FROM file_changes
		WHERE scan_id = ? AND (? = '' OR change_type = ?)
		ORDER BY file_path, change_type
		LIMIT ?`, scanID, string(changeType), string(changeType), limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []FileChange{}
	for rows.Next() {
		var (
			c                sql.NullString
			fc               FileChange
			oldSize, newSize sql.NullInt64
			oldMT, newMT     sql.NullString
		)
		if err = rows.Scan(&fc.ScanID, &fc.Path, &c, &oldSize, &newSize, &oldMT, &newMT); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		fc.ChangeType = ChangeType(c.String)
		fc.OldSizeBytes = int64Ptr(oldSize)
		fc.NewSizeBytes = int64Ptr(newSize)
		if fc.OldModTime, err = timePtr(oldMT); err != nil {
			return nil, err
		}
		if fc.NewModTime, err = timePtr(newMT); err != nil {
			return nil, err
		}
		changes = append(changes, fc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

func timePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
