package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/export"
	"fs-delta-tracker/internal/filesystem"
	"fs-delta-tracker/internal/logging"
	"fs-delta-tracker/internal/memory"
	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/scan"
	"fs-delta-tracker/internal/startup"
	"fs-delta-tracker/internal/telemetry"
)

const serviceName = "fs-delta-tracker"

// flagKeys maps command-line flags to configuration keys. A flag is bound
// only on the commands that define it.
var flagKeys = map[string]string{
	"config":            startup.KeyConfigFile,
	"database-path":     startup.KeyDatabasePath,
	"database-driver":   startup.KeyDatabaseDriver,
	"log-level":         startup.KeyLogLevel,
	"log-file":          startup.KeyLogFile,
	"staging-dir":       startup.KeyStagingDir,
	"data-root":         startup.KeyDataRoot,
	"workers":           startup.KeyCrawlWorkers,
	"rate-limit":        startup.KeyCrawlRateLimit,
	"progress-interval": startup.KeyProgressInterval,
	"listen-addr":       startup.KeyListenAddr,
}

// app is the state shared by every command of one invocation.
type app struct {
	v        *viper.Viper
	cfg      *startup.Config
	logger   *zap.Logger
	closeLog func() error
}

// Execute runs the command tree against os.Args and exits non-zero on error.
func Execute() {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the fs-delta command tree with a fresh configuration.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "fs-delta",
		Short: "Track what changed on a filesystem between scans",
		Long: `fs-delta crawls a directory tree, stages every regular file it finds and
compares the result with the previous scan of the same root. Each scan run
records how many files were added, modified and removed and how much data
those changes account for.`,
		Version:            startup.Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml, json or .env)")
	flags.String("database-path", "", "SQLite database file (default data/fs-delta.db)")
	flags.String("database-driver", "", "database driver: sqlite3 or sqlite")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "JSON log file (default logs/app.log)")

	root.AddCommand(
		newInitDBCommand(a),
		newScanCommand(a),
		newStartScanCommand(a),
		newCrawlCommand(a),
		newFinishScanCommand(a),
		newReportCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// setup resolves configuration and installs the process logger. Logs go to
// stderr so stdout carries only command output.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := startup.LoadConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closeLog, err := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}

// configureMemory applies the container memory limit before a crawl or the
// server starts allocating.
func (a *app) configureMemory() {
	memory.Configure(os.Getenv, a.logger.Named("memory"))
}

// observeFilesystem labels filesystem metrics of paths under root and the
// staging directory by volume. The returned func logs the totals seen
// since the call.
func (a *app) observeFilesystem(root string) func() {
	obs := metrics.NewFilesystemObserver()
	filesystem.SetObserver(obs)
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"data":    root,
		"staging": a.cfg.StagingDir,
	}))
	return func() {
		t := obs.Totals()
		a.logger.Info("Filesystem activity",
			zap.Int64("operations", t.Operations),
			zap.Int64("failures", t.Failures),
			zap.Int64("stale_handles", t.StaleHandles),
			zap.Int64("retries_recovered", t.Recovered),
			zap.Int64("retries_exhausted", t.Exhausted))
	}
}

func (a *app) openDB(ctx context.Context) (*database.Database, error) {
	start := time.Now()
	db, err := database.New(ctx, database.Options{
		Path:   a.cfg.DatabasePath,
		Driver: a.cfg.DatabaseDriver,
		Logger: a.logger.Named("database"),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", startup.RedactPath(a.cfg.DatabasePath), err)
	}
	a.logger.Debug("Database opened",
		zap.String("driver", db.Driver()),
		zap.Duration("duration", time.Since(start)))
	return db, nil
}

func closeDB(db *database.Database, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
}

// scanOptions derives orchestrator options for root from the configuration.
func (a *app) scanOptions(root string) scan.Options {
	return scan.Options{
		Root:              root,
		StagingDir:        a.cfg.StagingDir,
		Workers:           a.cfg.Workers,
		RateLimit:         a.cfg.RateLimit,
		ProgressInterval:  a.cfg.ProgressInterval,
		Hostname:          a.cfg.Hostname,
		KeepFailedStaging: a.cfg.KeepFailedStaging,
		Logger:            a.logger.Named("scan"),
	}
}

// initTracing installs the configured trace exporter. The returned function
// flushes pending spans.
func (a *app) initTracing(ctx context.Context) (func(), error) {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: startup.Version,
		Exporter:       a.cfg.TraceExporter,
		OTLPEndpoint:   a.cfg.OTLPEndpoint,
		OTLPInsecure:   true,
	})
	if err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			a.logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}, nil
}

// reporters returns the summary exporters enabled by configuration and a
// function that releases them.
func (a *app) reporters() ([]scan.Reporter, func(), error) {
	if !a.cfg.InfluxEnabled() {
		return nil, func() {}, nil
	}
	influx, err := export.NewInflux(export.InfluxConfig{
		URL:    a.cfg.InfluxURL,
		Token:  a.cfg.InfluxToken,
		Org:    a.cfg.InfluxOrg,
		Bucket: a.cfg.InfluxBucket,
	}, a.logger.Named("influx"))
	if err != nil {
		return nil, nil, err
	}
	return []scan.Reporter{influx}, influx.Close, nil
}
