package database

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/record"
)

// LoadStaging streams staging lines from r into the staging area of scanID
// inside one transaction. Rows left by an earlier attempt for the same scan
// are replaced. Any malformed line, or a line tagged with another scan id,
// rolls the whole load back. It returns the number of rows loaded.
func (d *Database) LoadStaging(ctx context.Context, scanID int64, r io.Reader) (int64, error) {
	start := time.Now()
	var (
		loaded int64
		err    error
	)
	defer func() { recordQuery("load_staging", start, err) }()

	err = d.withTx(ctx, "load", func(tx *sql.Tx) error {
		if _, open, err := scanState(ctx, tx, scanID); err != nil {
			return err
		} else if !open {
			return fmt.Errorf("%w: %d", ErrScanNotOpen, scanID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM staging_files WHERE scan_id = ?`, scanID); err != nil {
			return fmt.Errorf("clear previous staging rows: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO staging_files (scan_id, file_path, file_name, file_type, file_size_bytes, file_mtime)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare staging insert: %w", err)
		}
		defer stmt.Close()

		br := bufio.NewReaderSize(r, 256*1024)
		lineNo := 0
		for {
			line, readErr := br.ReadString('\n')
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				return fmt.Errorf("read staging artifact: %w", readErr)
			}
			if line != "" {
				lineNo++
				if !strings.HasSuffix(line, "\n") {
					return fmt.Errorf("%w: line %d is not newline-terminated", ErrMalformedLine, lineNo)
				}
				rec, parseErr := record.ParseLine(line)
				if parseErr != nil {
					return fmt.Errorf("%w: line %d: %w", ErrMalformedLine, lineNo, parseErr)
				}
				if rec.ScanID != scanID {
					return fmt.Errorf("%w: line %d belongs to scan %d, loading scan %d",
						ErrMalformedLine, lineNo, rec.ScanID, scanID)
				}
				if _, err := stmt.ExecContext(ctx, scanID, rec.Path, rec.Name, rec.Extension,
					rec.Size, rec.ModTime.Format(record.TimeFormat)); err != nil {
					return fmt.Errorf("insert staging line %d: %w", lineNo, err)
				}
				loaded++
			}
			if errors.Is(readErr, io.EOF) {
				return nil
			}
		}
	})
	if err != nil {
		return 0, err
	}

	metrics.DBStagingRowsLoaded.Add(float64(loaded))
	d.logger.Info("Staging area loaded",
		zap.Int64("scan_id", scanID),
		zap.Int64("rows", loaded),
		zap.Duration("elapsed", time.Since(start)))
	return loaded, nil
}

// ClearStaging deletes the staging rows of scanID only and returns how many
// were removed.
func (d *Database) ClearStaging(ctx context.Context, scanID int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear_staging", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, `DELETE FROM staging_files WHERE scan_id = ?`, scanID)
	if err != nil {
		return 0, fmt.Errorf("clear staging: %w", err)
	}
	var n int64
	n, err = res.RowsAffected()
	return n, err
}
