package database

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fs-delta-tracker/internal/metrics"
)

// GetStats reports store contents for the metrics collector. Errors are
// logged and yield zero values.
func (d *Database) GetStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var s metrics.Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM scan_runs WHERE finished_at IS NULL),
			(SELECT COUNT(*) FROM scan_runs WHERE finished_at IS NOT NULL)
	`).Scan(&s.TrackedFiles, &s.OpenScanRuns, &s.FinalizedScanRuns)
	if err != nil {
		d.logger.Warn("Failed to collect store statistics", zap.Error(err))
		return metrics.Stats{}
	}
	s.OpenConnections = d.db.Stats().OpenConnections
	return s
}
