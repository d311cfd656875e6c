package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fs-delta-tracker/internal/filesystem"
	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/record"
)

// WalkerConfig configures the traversal worker pool.
type WalkerConfig struct {
	// Workers is the number of lstat workers. Must be positive.
	Workers int
	// ChannelBuffer sizes the queue between the directory producer and the workers.
	ChannelBuffer int
	// Limiter throttles lstat calls when set.
	Limiter *rate.Limiter
	// Retry controls NFS stale handle retries for each lstat.
	Retry filesystem.RetryConfig
}

type fileJob struct {
	path string
}

// Walker enumerates a directory tree with one producer and a pool of
// workers that stat each regular file and emit a Record for it.
type Walker struct {
	root   string
	scanID int64
	config WalkerConfig
	logger *zap.Logger

	jobs chan fileJob
	wg   sync.WaitGroup

	emitted    atomic.Int64
	notRegular atomic.Int64
	unreadable atomic.Int64
	walkErrors atomic.Int64
}

// NewWalker creates a walker for root. Records carry scanID.
func NewWalker(root string, scanID int64, config WalkerConfig, logger *zap.Logger) *Walker {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.ChannelBuffer < 0 {
		config.ChannelBuffer = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Retry.Logger == nil {
		config.Retry.Logger = logger
	}
	return &Walker{
		root:   root,
		scanID: scanID,
		config: config,
		logger: logger,
		jobs:   make(chan fileJob, config.ChannelBuffer),
	}
}

// CheckRoot verifies that root exists and is a directory.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return fmt.Errorf("%w: %s: %w", ErrRootNotFound, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}
	return nil
}

// Walk traverses the tree and sends one Record per regular file to out.
// out is closed once every worker has finished, so its receiver can treat
// the close as the end of input. Walk must be called once.
func (w *Walker) Walk(ctx context.Context, out chan<- record.Record) error {
	defer close(out)

	if err := CheckRoot(w.root); err != nil {
		close(w.jobs)
		return err
	}

	w.logger.Info("Starting parallel directory walk",
		zap.String("root", w.root),
		zap.Int("workers", w.config.Workers))

	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i, out)
	}

	err := w.walkAndEnqueue(ctx)

	close(w.jobs)
	w.wg.Wait()

	w.logger.Info("Parallel walk complete",
		zap.Int64("files", w.emitted.Load()),
		zap.Int64("skipped", w.Skipped()),
		zap.Int64("walk_errors", w.walkErrors.Load()))

	if err != nil {
		return err
	}
	return ctx.Err()
}

func (w *Walker) walkAndEnqueue(ctx context.Context) error {
	var terminal error

	walkErr := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return fs.SkipAll
		default:
		}

		if err != nil {
			if path == w.root {
				terminal = fmt.Errorf("%w: reading root %s: %w", ErrTraversal, w.root, err)
				return fs.SkipAll
			}
			if _, statErr := os.Stat(w.root); statErr != nil {
				terminal = fmt.Errorf("%w: root %s vanished during walk: %w", ErrTraversal, w.root, statErr)
				return fs.SkipAll
			}
			w.walkErrors.Add(1)
			metrics.CrawlEntriesSkipped.WithLabelValues("walk_error").Inc()
			w.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			w.notRegular.Add(1)
			metrics.CrawlEntriesSkipped.WithLabelValues("not_regular").Inc()
			w.logger.Debug("Skipping non-regular entry",
				zap.String("path", path), zap.Stringer("type", d.Type()))
			return nil
		}

		select {
		case w.jobs <- fileJob{path: path}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})

	if terminal != nil {
		return terminal
	}
	if walkErr != nil {
		return fmt.Errorf("%w: %w", ErrTraversal, walkErr)
	}
	return nil
}

func (w *Walker) worker(ctx context.Context, id int, out chan<- record.Record) {
	defer w.wg.Done()

	w.logger.Debug("Worker started", zap.Int("worker", id))

	for job := range w.jobs {
		if ctx.Err() != nil {
			return
		}

		if w.config.Limiter != nil {
			if err := w.config.Limiter.Wait(ctx); err != nil {
				return
			}
		}

		rec, ok := w.processFile(ctx, job)
		if !ok {
			continue
		}

		select {
		case out <- rec:
			w.emitted.Add(1)
			metrics.CrawlRecordsTotal.Inc()
		case <-ctx.Done():
			return
		}
	}

	w.logger.Debug("Worker finished", zap.Int("worker", id))
}

// processFile stats one enumerated entry. A file that vanished or whose
// metadata cannot be read is skipped.
func (w *Walker) processFile(ctx context.Context, job fileJob) (record.Record, bool) {
	info, err := filesystem.LstatWithRetry(ctx, job.path, w.config.Retry)
	if err != nil {
		w.unreadable.Add(1)
		metrics.CrawlEntriesSkipped.WithLabelValues("unreadable").Inc()
		w.logger.Debug("Skipping unreadable entry", zap.String("path", job.path), zap.Error(err))
		return record.Record{}, false
	}

	// the entry may have been replaced since enumeration
	if !info.Mode().IsRegular() {
		w.notRegular.Add(1)
		metrics.CrawlEntriesSkipped.WithLabelValues("not_regular").Inc()
		return record.Record{}, false
	}

	return record.New(job.path, info, w.scanID), true
}

// Emitted returns the number of records handed to the output stream so far.
// It is safe to call concurrently with Walk.
func (w *Walker) Emitted() int64 {
	return w.emitted.Load()
}

// Skipped returns the number of entries skipped so far for any reason.
func (w *Walker) Skipped() int64 {
	return w.notRegular.Load() + w.unreadable.Load() + w.walkErrors.Load()
}
