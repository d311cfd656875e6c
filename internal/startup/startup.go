package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/logging"
	"fs-delta-tracker/internal/telemetry"
	"fs-delta-tracker/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"buildTime" yaml:"build_time"`
	GoVersion string `json:"goVersion" yaml:"go_version"`
	OS        string `json:"os" yaml:"os"`
	Arch      string `json:"arch" yaml:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Configuration keys. Each is also read from the upper-cased environment
// variable of the same name.
const (
	KeyConfigFile        = "config"
	KeyDataRoot          = "data_root"
	KeyDatabasePath      = "database_path"
	KeyDatabaseDriver    = "database_driver"
	KeyLogFile           = "log_file"
	KeyLogLevel          = "log_level"
	KeyProgressInterval  = "progress_interval"
	KeyCrawlWorkers      = "crawl_workers"
	KeyCrawlRateLimit    = "crawl_rate_limit"
	KeyStagingDir        = "staging_dir"
	KeyKeepFailedStaging = "keep_failed_staging"
	KeyListenAddr        = "listen_addr"
	KeyMetricsEnabled    = "metrics_enabled"
	KeyLogHealthChecks   = "log_health_checks"
	KeyTraceExporter     = "trace_exporter"
	KeyOTLPEndpoint      = "otlp_endpoint"
	KeyInfluxURL         = "influxdb_url"
	KeyInfluxToken       = "influxdb_token"
	KeyInfluxOrg         = "influxdb_org"
	KeyInfluxBucket      = "influxdb_bucket"
	KeyHostname          = "hostname"
)

// DefaultProgressInterval is used when PROGRESS_INTERVAL is unset or invalid.
const DefaultProgressInterval = 30 * time.Second

// ErrInvalidConfig is returned by LoadConfig for values that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	DataRoot       string
	DatabasePath   string
	DatabaseDriver string
	LogFile        string
	LogLevel       string

	ProgressInterval  time.Duration
	Workers           int
	RateLimit         float64
	StagingDir        string
	KeepFailedStaging bool

	ListenAddr      string
	MetricsEnabled  bool
	LogHealthChecks bool

	TraceExporter string
	OTLPEndpoint  string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	Hostname string
}

// SetDefaults registers the default of every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, filepath.Join("data", "fs-delta.db"))
	v.SetDefault(KeyDatabaseDriver, database.DriverSQLite3)
	v.SetDefault(KeyLogFile, filepath.Join("logs", "app.log"))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyProgressInterval, DefaultProgressInterval.String())
	v.SetDefault(KeyCrawlWorkers, 0)
	v.SetDefault(KeyCrawlRateLimit, 0.0)
	v.SetDefault(KeyStagingDir, os.TempDir())
	v.SetDefault(KeyKeepFailedStaging, true)
	v.SetDefault(KeyListenAddr, ":8080")
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeyLogHealthChecks, false)
	v.SetDefault(KeyTraceExporter, telemetry.ExporterNone)
	v.SetDefault(KeyOTLPEndpoint, "localhost:4317")
	v.SetDefault(KeyInfluxOrg, "fs-delta")
	v.SetDefault(KeyInfluxBucket, "scans")
}

// LoadConfig resolves configuration from v: flags bound to v, then
// environment, then the optional config file named by the "config" key,
// then defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	interval, err := ParseInterval(v.GetString(KeyProgressInterval))
	if err != nil {
		logging.Warn("Invalid PROGRESS_INTERVAL %q, using default: %v", v.GetString(KeyProgressInterval), DefaultProgressInterval)
		interval = DefaultProgressInterval
	}

	cfg := &Config{
		DataRoot:          v.GetString(KeyDataRoot),
		DatabasePath:      v.GetString(KeyDatabasePath),
		DatabaseDriver:    v.GetString(KeyDatabaseDriver),
		LogFile:           v.GetString(KeyLogFile),
		LogLevel:          v.GetString(KeyLogLevel),
		ProgressInterval:  interval,
		Workers:           workers.Resolve(v.GetInt(KeyCrawlWorkers), 32),
		RateLimit:         v.GetFloat64(KeyCrawlRateLimit),
		StagingDir:        v.GetString(KeyStagingDir),
		KeepFailedStaging: v.GetBool(KeyKeepFailedStaging),
		ListenAddr:        v.GetString(KeyListenAddr),
		MetricsEnabled:    v.GetBool(KeyMetricsEnabled),
		LogHealthChecks:   v.GetBool(KeyLogHealthChecks),
		TraceExporter:     v.GetString(KeyTraceExporter),
		OTLPEndpoint:      v.GetString(KeyOTLPEndpoint),
		InfluxURL:         v.GetString(KeyInfluxURL),
		InfluxToken:       v.GetString(KeyInfluxToken),
		InfluxOrg:         v.GetString(KeyInfluxOrg),
		InfluxBucket:      v.GetString(KeyInfluxBucket),
		Hostname:          v.GetString(KeyHostname),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseInterval accepts a Go duration ("45s", "2m") or a bare number of
// seconds ("30").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("interval must be positive: %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %q", s)
	}
	return d, nil
}

// Validate checks enumerated values and numeric ranges.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case database.DriverSQLite3, database.DriverSQLite:
	default:
		return fmt.Errorf("%w: DATABASE_DRIVER %q (want %s or %s)",
			ErrInvalidConfig, c.DatabaseDriver, database.DriverSQLite3, database.DriverSQLite)
	}
	switch c.TraceExporter {
	case "", telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP:
	default:
		return fmt.Errorf("%w: TRACE_EXPORTER %q", ErrInvalidConfig, c.TraceExporter)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: DATABASE_PATH is empty", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: CRAWL_RATE_LIMIT must not be negative", ErrInvalidConfig)
	}
	return nil
}

// InfluxEnabled reports whether scan summaries should be exported.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != "" && c.InfluxToken != ""
}

// LogConfig prints the effective configuration. Paths to the database are
// reduced to their final element.
func LogConfig(c *Config) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  DATA_ROOT:           %s", c.DataRoot)
	logging.Info("  DATABASE_PATH:       %s", RedactPath(c.DatabasePath))
	logging.Info("  DATABASE_DRIVER:     %s", c.DatabaseDriver)
	logging.Info("  STAGING_DIR:         %s", c.StagingDir)
	logging.Info("  KEEP_FAILED_STAGING: %v", c.KeepFailedStaging)
	logging.Info("  PROGRESS_INTERVAL:   %v", c.ProgressInterval)
	logging.Info("  CRAWL_WORKERS:       %d", c.Workers)
	if c.RateLimit > 0 {
		logging.Info("  CRAWL_RATE_LIMIT:    %.0f files/s", c.RateLimit)
	} else {
		logging.Info("  CRAWL_RATE_LIMIT:    unlimited")
	}
	logging.Info("  TRACE_EXPORTER:      %s", c.TraceExporter)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    InfluxDB export: %s", enabledString(c.InfluxEnabled()))
	logging.Info("    Tracing:         %s", enabledString(c.TraceExporter != "" && c.TraceExporter != telemetry.ExporterNone))
}

// RedactPath keeps only the final element of a filesystem path or DSN.
func RedactPath(p string) string {
	if p == "" {
		return ""
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return ".../" + filepath.Base(p)
}

// PrepareDirectories creates the database and staging directories and
// checks that both are writable.
func PrepareDirectories(c *Config) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, dir := range []struct{ path, name string }{
		{filepath.Dir(c.DatabasePath), "database"},
		{c.StagingDir, "staging"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	ListenAddr      string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Listening on:    %s", config.ListenAddr)
	logging.Info("  Scan reports:    %s/api/scans", config.ListenAddr)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         %s/metrics", config.ListenAddr)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
   __            _      _ _
  / _|___ ___ __| |___ | | |_ __ _
 |  _(_-<|___/ _' / -_)| |  _/ _' |
 |_| /__/    \__,_\___||_|\__\__,_|  tracker

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
