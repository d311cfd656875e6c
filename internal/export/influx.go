package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/scan"
)

// Measurement is the InfluxDB measurement written per finalized scan.
const Measurement = "scan_run"

// ErrNotConfigured is returned by NewInflux when URL or token is missing.
var ErrNotConfigured = errors.New("influxdb export not configured")

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether URL and token are both set.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Token != ""
}

// PointWriter is the subset of api.WriteAPIBlocking used by Influx.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes one point per finalized scan. It implements scan.Reporter.
type Influx struct {
	writer PointWriter
	close  func()
	logger *zap.Logger
}

var _ scan.Reporter = (*Influx)(nil)

// NewInflux connects a blocking write API for cfg.
func NewInflux(cfg InfluxConfig, logger *zap.Logger) (*Influx, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		close:  client.Close,
		logger: loggerOrNop(logger),
	}, nil
}

// NewInfluxWithWriter wraps an existing writer.
func NewInfluxWithWriter(w PointWriter, logger *zap.Logger) *Influx {
	return &Influx{writer: w, close: func() {}, logger: loggerOrNop(logger)}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Report writes the summary of one finalized scan.
func (e *Influx) Report(ctx context.Context, s *scan.Summary) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := e.writer.WritePoint(ctx, Point(s)); err != nil {
		return fmt.Errorf("write %s point for scan %d: %w", Measurement, s.ScanID, err)
	}
	e.logger.Debug("Scan summary exported", zap.Int64("scan_id", s.ScanID))
	return nil
}

// Close releases the underlying client.
func (e *Influx) Close() {
	e.close()
}

// Point converts a scan summary to an InfluxDB point stamped with its
// finish time.
func Point(s *scan.Summary) *write.Point {
	added := s.Totals[database.ChangeAdded]
	modified := s.Totals[database.ChangeModified]
	deleted := s.Totals[database.ChangeDeleted]

	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"scan_root": s.Root,
			"hostname":  s.Hostname,
		},
		map[string]interface{}{
			"scan_id":              s.ScanID,
			"total_paths":          s.TotalPaths,
			"added_files":          added.Count,
			"modified_files":       modified.Count,
			"removed_files":        deleted.Count,
			"new_data_mb":          database.BytesToMB(added.Bytes),
			"modified_data_mb":     database.BytesToMB(modified.Bytes),
			"deleted_data_mb":      database.BytesToMB(deleted.Bytes),
			"crawl_duration_s":     s.CrawlDuration.Seconds(),
			"load_duration_s":      s.LoadDuration.Seconds(),
			"sql_execution_time_s": s.DiffDuration.Seconds(),
		},
		s.FinishedAt,
	)
}
