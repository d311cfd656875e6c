package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fs-delta-tracker/internal/filesystem"
	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/record"
	"fs-delta-tracker/internal/workers"
)

// Run metadata keys produced by a crawl.
const (
	MetaDataRoot      = "data_root"
	MetaCrawlDuration = "crawl_timer_duration_s"
	MetaTotalFiles    = "total_files_processed"
	MetaFilesPerSec   = "crawler_files_per_second"
	MetaSkipped       = "entries_skipped"
	MetaWorkers       = "crawler_workers"
)

const defaultChannelBuffer = 1000

// Options configures a single crawl.
type Options struct {
	Root   string
	ScanID int64
	// Output is the staging artifact path.
	Output string

	// Workers defaults to workers.ForIO(32).
	Workers       int
	ChannelBuffer int
	// RateLimit caps lstat calls per second. Zero disables throttling.
	RateLimit float64
	Retry     *filesystem.RetryConfig

	ProgressInterval time.Duration
	OnProgress       func(Progress)

	Logger *zap.Logger
}

// Result describes a completed crawl.
type Result struct {
	Root     string
	ScanID   int64
	Output   string
	Total    int64
	Skipped  int64
	Elapsed  time.Duration
	Rate     float64
	Metadata map[string]string
}

// Crawl walks opts.Root and writes every regular file to opts.Output.
//
// Shutdown is ordered: the walker's workers finish and the walker closes
// the record stream, the writer drains it and closes the artifact, and only
// then is the progress monitor stopped and the summary computed from the
// number of lines written. A writer failure cancels the walk.
func Crawl(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := CheckRoot(opts.Root); err != nil {
		return nil, err
	}

	config := WalkerConfig{
		Workers:       opts.Workers,
		ChannelBuffer: opts.ChannelBuffer,
		Retry:         filesystem.DefaultRetryConfig(),
	}
	if config.Workers <= 0 {
		config.Workers = workers.ForIO(32)
	}
	if config.ChannelBuffer <= 0 {
		config.ChannelBuffer = defaultChannelBuffer
	}
	if opts.Retry != nil {
		config.Retry = *opts.Retry
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		config.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	logger = logger.With(zap.Int64("scan_id", opts.ScanID))
	walker := NewWalker(opts.Root, opts.ScanID, config, logger)
	writer := NewSinkWriter(opts.Output, logger)
	monitor := NewMonitor(opts.ProgressInterval, walker.Emitted, logger, opts.OnProgress)

	metrics.CrawlRunsTotal.Inc()
	metrics.CrawlIsRunning.Inc()
	defer metrics.CrawlIsRunning.Dec()

	logger.Info("Crawl started",
		zap.String("root", opts.Root),
		zap.String("output", opts.Output))

	start := time.Now()
	monitor.Start(start)

	stream := make(chan record.Record, config.ChannelBuffer)
	g, gctx := errgroup.WithContext(ctx)

	var written int64
	g.Go(func() error {
		return walker.Walk(gctx, stream)
	})
	g.Go(func() error {
		n, err := writer.Run(stream)
		written = n
		return err
	})

	if err := g.Wait(); err != nil {
		monitor.Stop()
		logger.Error("Crawl failed",
			zap.Int64("lines_written", written),
			zap.String("output", opts.Output),
			zap.Error(err))
		return nil, err
	}

	elapsed := time.Since(start)
	summary := monitor.Finish(written, elapsed)

	metrics.CrawlLastDuration.Set(elapsed.Seconds())
	metrics.CrawlLastRecords.Set(float64(written))
	metrics.CrawlFilesPerSecond.Set(summary.Rate)

	root := opts.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Result{
		Root:    root,
		ScanID:  opts.ScanID,
		Output:  opts.Output,
		Total:   written,
		Skipped: walker.Skipped(),
		Elapsed: elapsed,
		Rate:    summary.Rate,
		Metadata: map[string]string{
			MetaDataRoot:      root,
			MetaCrawlDuration: fmt.Sprintf("%.3f", elapsed.Seconds()),
			MetaTotalFiles:    strconv.FormatInt(written, 10),
			MetaFilesPerSec:   fmt.Sprintf("%.2f", summary.Rate),
			MetaSkipped:       strconv.FormatInt(walker.Skipped(), 10),
			MetaWorkers:       strconv.Itoa(config.Workers),
		},
	}, nil
}
