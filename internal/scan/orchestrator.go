package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/crawler"
	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/filesystem"
	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/telemetry"
)

// Run metadata keys added after the crawl phase.
const (
	MetaLoadTime    = "load_time_s"
	MetaRowsLoaded  = "rows_loaded"
	MetaSQLTime     = "sql_execution_time_s"
	MetaHostname    = "hostname"
	MetaScanID      = "scan_id"
	MetaCompletedAt = "completed_at"
	MetaRunID       = "run_id"
	MetaAdded       = "added_files_count"
	MetaModified    = "modified_files_count"
	MetaRemoved     = "removed_files_count"
	MetaNewMB       = "new_data_mb"
	MetaModifiedMB  = "modified_data_mb"
	MetaDeletedMB   = "deleted_data_mb"
)

const (
	unknownHostname = "unknown"
	artifactPrefix  = "fs-delta-scan-"
	artifactSuffix  = ".tsv"
)

// Store is the metadata store used by the orchestrator.
type Store interface {
	StartScan(ctx context.Context, root string, startedAt time.Time) (int64, error)
	LoadStaging(ctx context.Context, scanID int64, r io.Reader) (int64, error)
	ClearStaging(ctx context.Context, scanID int64) (int64, error)
	ComputeDelta(ctx context.Context, scanID int64) error
	ChangeTotals(ctx context.Context, scanID int64) (map[database.ChangeType]database.ChangeTotal, error)
	FinalizeScan(ctx context.Context, scanID int64, p database.FinalizeParams) error
}

// Reporter receives the summary of every finalized scan. Errors are logged.
type Reporter interface {
	Report(ctx context.Context, s *Summary) error
}

// Options configures an Orchestrator.
type Options struct {
	Root string
	// StagingDir holds the staging artifact. Defaults to os.TempDir().
	StagingDir string

	Workers          int
	RateLimit        float64
	ProgressInterval time.Duration
	OnProgress       func(crawler.Progress)

	// Hostname is recorded in run metadata. Empty means os.Hostname, then
	// $HOSTNAME, then "unknown".
	Hostname string
	// KeepFailedStaging leaves the artifact of a failed scan on disk.
	KeepFailedStaging bool

	Reporters []Reporter
	Logger    *zap.Logger
}

// Summary is the outcome of a finalized scan.
type Summary struct {
	ScanID     int64
	RunID      string
	Root       string
	Hostname   string
	StartedAt  time.Time
	FinishedAt time.Time
	TotalPaths int64
	Totals     map[database.ChangeType]database.ChangeTotal

	CrawlDuration time.Duration
	LoadDuration  time.Duration
	DiffDuration  time.Duration

	Metadata map[string]string
}

// Orchestrator drives one scan run through its lifecycle:
// created, crawling, loading, diffing, finalized. Any failure moves it to
// the failed state and leaves the scan run open in the store.
type Orchestrator struct {
	store  Store
	opts   Options
	logger *zap.Logger
	runID  string

	mu        sync.Mutex
	state     State
	scanID    int64
	startedAt time.Time
	artifact  string
	loadTime  time.Duration
}

// New returns an orchestrator for a fresh scan of opts.Root.
func New(store Store, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	opts.Hostname = resolveHostname(opts.Hostname)

	return &Orchestrator{
		store:  store,
		opts:   opts,
		logger: logger,
		runID:  uuid.NewString(),
	}
}

// Resume returns an orchestrator for an open scan run whose staging
// artifact was produced elsewhere. Only Finish may be called on it.
func Resume(store Store, run *database.ScanRun, opts Options) *Orchestrator {
	opts.Root = run.ScanRoot
	o := New(store, opts)
	o.scanID = run.ScanID
	o.startedAt = run.StartedAt
	o.state = StateCrawling
	o.logger = o.logger.With(zap.Int64("scan_id", run.ScanID))
	return o
}

func resolveHostname(configured string) string {
	if configured != "" {
		return configured
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	return unknownHostname
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ScanID returns the allocated scan id, or 0 before Start.
func (o *Orchestrator) ScanID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scanID
}

// ArtifactPath returns where the staging artifact of the scan is written.
func (o *Orchestrator) ArtifactPath() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.artifactPathLocked()
}

func (o *Orchestrator) artifactPathLocked() string {
	if o.artifact == "" && o.scanID != 0 {
		o.artifact = ArtifactPath(o.opts.StagingDir, o.scanID)
	}
	return o.artifact
}

// ArtifactPath is the default staging artifact location of a scan in dir.
func ArtifactPath(dir string, scanID int64) string {
	return filepath.Join(dir, artifactPrefix+strconv.FormatInt(scanID, 10)+artifactSuffix)
}

// transition moves from one of the expected states to next.
func (o *Orchestrator) transition(next State, from ...State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range from {
		if o.state == s {
			o.logger.Debug("Scan state change",
				zap.Stringer("from", o.state),
				zap.Stringer("to", next))
			o.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: cannot enter %s from %s", ErrInvalidState, next, o.state)
}

// fail moves to the failed state and wraps err with the phase context.
func (o *Orchestrator) fail(phase State, err error) error {
	o.mu.Lock()
	o.state = StateFailed
	scanID := o.scanID
	o.mu.Unlock()

	metrics.ScansTotal.WithLabelValues("failed").Inc()
	o.logger.Error("Scan failed",
		zap.Int64("scan_id", scanID),
		zap.Stringer("phase", phase),
		zap.Error(err))
	return &PhaseError{ScanID: scanID, Phase: phase, Err: err}
}

func observePhase(phase State, start time.Time) {
	metrics.ScanPhaseDuration.WithLabelValues(phase.String()).Observe(time.Since(start).Seconds())
}

// Run executes the whole lifecycle and returns the finalized summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	ctx, span := telemetry.StartSpan(ctx, "scan.Run",
		attribute.String("scan.root", o.opts.Root),
		attribute.String("scan.run_id", o.runID))

	summary, err := o.run(ctx)
	if summary != nil {
		span.SetAttributes(attribute.Int64("scan.id", summary.ScanID))
	}
	telemetry.EndSpan(span, err)
	return summary, err
}

func (o *Orchestrator) run(ctx context.Context) (*Summary, error) {
	if _, err := o.Start(ctx); err != nil {
		return nil, err
	}
	result, err := o.Crawl(ctx)
	if err != nil {
		return nil, err
	}
	return o.Finish(ctx, result.Output, result.Metadata)
}

// Start verifies the root and allocates the scan run. No scan run is
// created for a missing root.
func (o *Orchestrator) Start(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "scan.Start", attribute.String("scan.root", o.opts.Root))
	phaseStart := time.Now()

	id, err := o.start(ctx)
	observePhase(StateCreated, phaseStart)
	telemetry.EndSpan(span, err)
	return id, err
}

func (o *Orchestrator) start(ctx context.Context) (int64, error) {
	o.mu.Lock()
	if o.state != StateNew {
		state := o.state
		o.mu.Unlock()
		return 0, fmt.Errorf("%w: start called in state %s", ErrInvalidState, state)
	}
	o.mu.Unlock()

	if err := crawler.CheckRoot(o.opts.Root); err != nil {
		return 0, o.fail(StateCreated, err)
	}

	root := o.opts.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	startedAt := time.Now().UTC()
	id, err := o.store.StartScan(ctx, root, startedAt)
	if err != nil {
		return 0, o.fail(StateCreated, err)
	}

	o.mu.Lock()
	o.opts.Root = root
	o.scanID = id
	o.startedAt = startedAt
	o.state = StateCreated
	o.logger = o.logger.With(zap.Int64("scan_id", id))
	o.mu.Unlock()

	o.logger.Info("Scan run created",
		zap.String("root", root),
		zap.String("run_id", o.runID))
	return id, nil
}

// Crawl runs the crawl phase into the scan's staging artifact.
func (o *Orchestrator) Crawl(ctx context.Context) (*crawler.Result, error) {
	if err := o.transition(StateCrawling, StateCreated); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "scan.Crawl", attribute.Int64("scan.id", o.ScanID()))
	phaseStart := time.Now()

	output := o.ArtifactPath()
	result, err := crawler.Crawl(ctx, crawler.Options{
		Root:             o.opts.Root,
		ScanID:           o.ScanID(),
		Output:           output,
		Workers:          o.opts.Workers,
		RateLimit:        o.opts.RateLimit,
		ProgressInterval: o.opts.ProgressInterval,
		OnProgress:       o.opts.OnProgress,
		Logger:           o.logger,
	})
	observePhase(StateCrawling, phaseStart)
	if err != nil {
		o.disposeFailedArtifact(output)
		err = o.fail(StateCrawling, err)
		telemetry.EndSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("crawl.records", result.Total))
	telemetry.EndSpan(span, nil)
	return result, nil
}

// Finish loads the staging artifact, computes the delta and finalizes the
// scan run. crawlMeta is merged into the persisted run metadata.
func (o *Orchestrator) Finish(ctx context.Context, artifact string, crawlMeta map[string]string) (*Summary, error) {
	o.mu.Lock()
	if o.state != StateCrawling {
		state := o.state
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: finish called in state %s", ErrInvalidState, state)
	}
	if artifact == "" {
		artifact = o.artifactPathLocked()
	}
	o.artifact = artifact
	scanID := o.scanID
	o.mu.Unlock()

	summary := &Summary{
		ScanID:    scanID,
		RunID:     o.runID,
		Root:      o.opts.Root,
		Hostname:  o.opts.Hostname,
		StartedAt: o.startedAt,
		Metadata:  make(map[string]string, len(crawlMeta)+16),
	}
	for k, v := range crawlMeta {
		summary.Metadata[k] = v
	}
	if root, ok := crawlMeta[crawler.MetaDataRoot]; ok && summary.Root == "" {
		summary.Root = root
	}
	if secs, err := strconv.ParseFloat(crawlMeta[crawler.MetaCrawlDuration], 64); err == nil {
		summary.CrawlDuration = time.Duration(secs * float64(time.Second))
	}

	// Loading
	if err := o.transition(StateLoading, StateCrawling); err != nil {
		return nil, err
	}
	loaded, err := o.load(ctx, scanID, artifact)
	if err != nil {
		o.disposeFailedArtifact(artifact)
		return nil, o.fail(StateLoading, err)
	}
	summary.TotalPaths = loaded

	// Diffing
	if err := o.transition(StateDiffing, StateLoading); err != nil {
		return nil, err
	}
	if err := o.diff(ctx, scanID, summary); err != nil {
		return nil, o.fail(StateDiffing, err)
	}

	// Finalized
	if err := o.finalize(ctx, scanID, summary); err != nil {
		return nil, o.fail(StateFinalized, err)
	}
	if err := o.transition(StateFinalized, StateDiffing); err != nil {
		return nil, err
	}

	o.cleanup(ctx, scanID, artifact)
	o.report(ctx, summary)
	return summary, nil
}

func (o *Orchestrator) load(ctx context.Context, scanID int64, artifact string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "scan.Load",
		attribute.Int64("scan.id", scanID),
		attribute.String("scan.artifact", artifact))
	start := time.Now()

	loaded, err := func() (int64, error) {
		retry := filesystem.DefaultRetryConfig()
		retry.Logger = o.logger
		f, err := filesystem.OpenWithRetry(ctx, artifact, retry)
		if err != nil {
			return 0, fmt.Errorf("open staging artifact: %w", err)
		}
		defer f.Close()
		return o.store.LoadStaging(ctx, scanID, f)
	}()
	elapsed := time.Since(start)
	observePhase(StateLoading, start)
	telemetry.EndSpan(span, err)
	if err != nil {
		return 0, err
	}

	o.logger.Info("Staging artifact loaded",
		zap.Int64("rows", loaded),
		zap.Duration("elapsed", elapsed))
	o.mu.Lock()
	o.loadTime = elapsed
	o.mu.Unlock()
	return loaded, nil
}

func (o *Orchestrator) diff(ctx context.Context, scanID int64, summary *Summary) error {
	ctx, span := telemetry.StartSpan(ctx, "scan.Diff", attribute.Int64("scan.id", scanID))
	start := time.Now()

	err := o.store.ComputeDelta(ctx, scanID)
	var totals map[database.ChangeType]database.ChangeTotal
	if err == nil {
		totals, err = o.store.ChangeTotals(ctx, scanID)
	}
	summary.DiffDuration = time.Since(start)
	observePhase(StateDiffing, start)
	telemetry.EndSpan(span, err)
	if err != nil {
		return err
	}

	// Categories absent from the store result count as zero.
	summary.Totals = make(map[database.ChangeType]database.ChangeTotal, len(database.ChangeTypes))
	for _, ct := range database.ChangeTypes {
		summary.Totals[ct] = totals[ct]
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, scanID int64, summary *Summary) error {
	ctx, span := telemetry.StartSpan(ctx, "scan.Finalize", attribute.Int64("scan.id", scanID))
	start := time.Now()

	o.mu.Lock()
	summary.LoadDuration = o.loadTime
	o.mu.Unlock()

	summary.FinishedAt = time.Now().UTC()
	added := summary.Totals[database.ChangeAdded]
	modified := summary.Totals[database.ChangeModified]
	deleted := summary.Totals[database.ChangeDeleted]

	meta := summary.Metadata
	meta[MetaLoadTime] = fmt.Sprintf("%.3f", summary.LoadDuration.Seconds())
	meta[MetaRowsLoaded] = strconv.FormatInt(summary.TotalPaths, 10)
	meta[MetaSQLTime] = fmt.Sprintf("%.3f", summary.DiffDuration.Seconds())
	meta[MetaHostname] = summary.Hostname
	meta[MetaScanID] = strconv.FormatInt(scanID, 10)
	meta[MetaCompletedAt] = summary.FinishedAt.Format(time.RFC3339)
	meta[MetaRunID] = summary.RunID
	meta[MetaAdded] = strconv.FormatInt(added.Count, 10)
	meta[MetaModified] = strconv.FormatInt(modified.Count, 10)
	meta[MetaRemoved] = strconv.FormatInt(deleted.Count, 10)
	meta[MetaNewMB] = formatMB(added.Bytes)
	meta[MetaModifiedMB] = formatMB(modified.Bytes)
	meta[MetaDeletedMB] = formatMB(deleted.Bytes)

	err := o.store.FinalizeScan(ctx, scanID, database.FinalizeParams{
		FinishedAt:     summary.FinishedAt,
		TotalPaths:     summary.TotalPaths,
		Added:          added.Count,
		Modified:       modified.Count,
		Removed:        deleted.Count,
		NewDataMB:      database.BytesToMB(added.Bytes),
		ModifiedDataMB: database.BytesToMB(modified.Bytes),
		DeletedDataMB:  database.BytesToMB(deleted.Bytes),
		Metadata:       meta,
	})
	observePhase(StateFinalized, start)
	telemetry.EndSpan(span, err)
	if err != nil {
		return err
	}

	metrics.ScansTotal.WithLabelValues("finalized").Inc()
	for ct, total := range summary.Totals {
		metrics.ScanLastChanges.WithLabelValues(string(ct)).Set(float64(total.Count))
		metrics.ScanLastChangeBytes.WithLabelValues(string(ct)).Set(float64(total.Bytes))
	}
	metrics.ScanLastFinishedTimestamp.Set(float64(summary.FinishedAt.Unix()))

	o.logger.Info("Scan finalized",
		zap.Int64("total_paths", summary.TotalPaths),
		zap.Int64("added", added.Count),
		zap.Int64("modified", modified.Count),
		zap.Int64("deleted", deleted.Count))
	return nil
}

func formatMB(b int64) string {
	return strconv.FormatFloat(database.BytesToMB(b), 'f', 6, 64)
}

// cleanup purges the staging rows and the artifact of a finalized scan.
// Failures are logged only.
func (o *Orchestrator) cleanup(ctx context.Context, scanID int64, artifact string) {
	if _, err := o.store.ClearStaging(ctx, scanID); err != nil {
		metrics.ScanCleanupFailures.Inc()
		o.logger.Warn("Failed to purge staging rows", zap.Error(err))
	}
	if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
		metrics.ScanCleanupFailures.Inc()
		o.logger.Warn("Failed to remove staging artifact",
			zap.String("path", artifact),
			zap.Error(err))
	}
}

func (o *Orchestrator) disposeFailedArtifact(artifact string) {
	if artifact == "" {
		return
	}
	if o.opts.KeepFailedStaging {
		if _, err := os.Stat(artifact); err == nil {
			o.logger.Warn("Keeping staging artifact of failed scan for inspection",
				zap.String("path", artifact))
		}
		return
	}
	if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("Failed to remove staging artifact of failed scan",
			zap.String("path", artifact),
			zap.Error(err))
		return
	}
	o.logger.Info("Removed staging artifact of failed scan", zap.String("path", artifact))
}

func (o *Orchestrator) report(ctx context.Context, summary *Summary) {
	for _, r := range o.opts.Reporters {
		if err := r.Report(ctx, summary); err != nil {
			o.logger.Warn("Scan summary export failed", zap.Error(err))
		}
	}
}
