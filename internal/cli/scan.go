package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"fs-delta-tracker/internal/crawler"
	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/scan"
	"fs-delta-tracker/internal/startup"
)

// crawlMetaSuffix names the file next to a staging artifact that carries
// the crawl statistics from crawl to finish-scan.
const crawlMetaSuffix = ".meta.yaml"

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().String("staging-dir", "", "directory for staging artifacts (default: system temp dir)")
	cmd.Flags().Int("workers", 0, "concurrent traversal workers (default: based on CPU count)")
	cmd.Flags().Float64("rate-limit", 0, "maximum files per second, 0 for unlimited")
	cmd.Flags().String("progress-interval", "", "progress report interval, e.g. 30s")
}

func newScanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a complete scan of a root and record its changes",
		Long: `Allocates a scan run, crawls the data root into a staging artifact, loads it,
classifies every path as added, modified or deleted relative to the previous
scan of the same root and finalizes the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.DataRoot == "" {
				return fmt.Errorf("%w: DATA_ROOT is required", startup.ErrInvalidConfig)
			}

			startup.LogConfig(a.cfg)
			if err := startup.PrepareDirectories(a.cfg); err != nil {
				return err
			}
			a.configureMemory()
			defer a.observeFilesystem(a.cfg.DataRoot)()
			metrics.InitializeMetrics()

			flush, err := a.initTracing(ctx)
			if err != nil {
				return err
			}
			defer flush()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			reporters, release, err := a.reporters()
			if err != nil {
				return err
			}
			defer release()

			opts := a.scanOptions(a.cfg.DataRoot)
			opts.Reporters = reporters
			summary, err := scan.New(db, opts).Run(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().String("data-root", "", "directory to scan")
	addCrawlFlags(cmd)
	return cmd
}

func newStartScanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-scan",
		Short: "Allocate a scan run for a root and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.DataRoot == "" {
				return fmt.Errorf("%w: DATA_ROOT is required", startup.ErrInvalidConfig)
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			id, err := scan.New(db, a.scanOptions(a.cfg.DataRoot)).Start(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().String("data-root", "", "directory the scan will crawl")
	return cmd
}

// openRun looks up a scan run that has not been finalized.
func openRun(cmd *cobra.Command, db *database.Database, scanID int64) (*database.ScanRun, error) {
	if scanID <= 0 {
		return nil, errors.New("--scan-id is required")
	}
	run, err := db.GetScanRun(cmd.Context(), scanID)
	if err != nil {
		return nil, err
	}
	if !run.Open() {
		return nil, fmt.Errorf("scan %d: %w", scanID, database.ErrScanNotOpen)
	}
	return run, nil
}

func newCrawlCommand(a *app) *cobra.Command {
	var (
		scanID int64
		output string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the root of an open scan run into a staging artifact",
		Long: `Crawls the root recorded for an open scan run and writes one line per
regular file to the staging artifact. The crawl statistics are stored next
to the artifact for finish-scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			run, err := openRun(cmd, db, scanID)
			if err != nil {
				return err
			}
			if output == "" {
				output = scan.ArtifactPath(a.cfg.StagingDir, scanID)
			}
			a.configureMemory()
			defer a.observeFilesystem(run.ScanRoot)()

			result, err := crawler.Crawl(ctx, crawler.Options{
				Root:             run.ScanRoot,
				ScanID:           scanID,
				Output:           output,
				Workers:          a.cfg.Workers,
				RateLimit:        a.cfg.RateLimit,
				ProgressInterval: a.cfg.ProgressInterval,
				Logger:           a.logger.Named("crawler"),
			})
			if err != nil {
				return err
			}
			if err := writeCrawlMeta(output+crawlMetaSuffix, result.Metadata); err != nil {
				a.logger.Warn("Failed to save crawl statistics", zap.Error(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s files written to %s in %s\n",
				humanize.Comma(result.Total), result.Output, crawler.FormatElapsed(result.Elapsed))
			return nil
		},
	}
	cmd.Flags().Int64Var(&scanID, "scan-id", 0, "open scan run to crawl for")
	cmd.Flags().StringVarP(&output, "output", "o", "", "staging artifact path")
	addCrawlFlags(cmd)
	return cmd
}

func newFinishScanCommand(a *app) *cobra.Command {
	var (
		scanID int64
		input  string
	)
	cmd := &cobra.Command{
		Use:   "finish-scan",
		Short: "Load a staging artifact, compute changes and finalize the scan run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			metrics.InitializeMetrics()

			flush, err := a.initTracing(ctx)
			if err != nil {
				return err
			}
			defer flush()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			run, err := openRun(cmd, db, scanID)
			if err != nil {
				return err
			}
			if input == "" {
				input = scan.ArtifactPath(a.cfg.StagingDir, scanID)
			}
			defer a.observeFilesystem(run.ScanRoot)()

			crawlMeta, err := readCrawlMeta(input + crawlMetaSuffix)
			if err != nil {
				a.logger.Warn("Crawl statistics unavailable", zap.Error(err))
			}

			reporters, release, err := a.reporters()
			if err != nil {
				return err
			}
			defer release()

			opts := a.scanOptions(run.ScanRoot)
			opts.Reporters = reporters
			summary, err := scan.Resume(db, run, opts).Finish(ctx, input, crawlMeta)
			if err != nil {
				return err
			}
			if err := os.Remove(input + crawlMetaSuffix); err != nil && !os.IsNotExist(err) {
				a.logger.Warn("Failed to remove crawl statistics", zap.Error(err))
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().Int64Var(&scanID, "scan-id", 0, "open scan run to finish")
	cmd.Flags().StringVarP(&input, "input", "i", "", "staging artifact path")
	cmd.Flags().String("staging-dir", "", "directory holding the staging artifact")
	return cmd
}

func writeCrawlMeta(path string, meta map[string]string) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readCrawlMeta returns nil without error when no statistics were saved.
func readCrawlMeta(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta map[string]string
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return meta, nil
}

func printSummary(w io.Writer, s *scan.Summary) {
	added := s.Totals[database.ChangeAdded]
	modified := s.Totals[database.ChangeModified]
	deleted := s.Totals[database.ChangeDeleted]

	fmt.Fprintf(w, "scan %d of %s finalized: %s paths\n", s.ScanID, s.Root, humanize.Comma(s.TotalPaths))
	fmt.Fprintf(w, "  added:    %s (%s)\n", humanize.Comma(added.Count), humanize.IBytes(uint64(added.Bytes)))
	fmt.Fprintf(w, "  modified: %s (%s)\n", humanize.Comma(modified.Count), humanize.IBytes(uint64(modified.Bytes)))
	fmt.Fprintf(w, "  deleted:  %s (%s)\n", humanize.Comma(deleted.Count), humanize.IBytes(uint64(deleted.Bytes)))
	fmt.Fprintf(w, "  run id:   %s\n", s.RunID)
}
