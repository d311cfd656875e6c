package memory

import (
	"math"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest covers goroutine stacks, SQLite page cache and buffers.
const DefaultMemoryRatio = 0.85

// Sources reported in Result.Source.
const (
	SourceGoMemLimit  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// Result describes what Configure did.
type Result struct {
	// Configured is true when a soft memory limit is in effect.
	Configured bool
	Source     string
	// ContainerLimit is MEMORY_LIMIT in bytes, 0 when unset.
	ContainerLimit int64
	// GoMemLimit is the limit now in effect, 0 when none.
	GoMemLimit int64
	Ratio      float64
}

// Configure sets the Go soft memory limit from the environment:
//   - GOMEMLIMIT, when set, is left alone and only reported
//   - MEMORY_LIMIT is a container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO scales MEMORY_LIMIT, default DefaultMemoryRatio
//
// Call it before the crawl starts allocating.
func Configure(getenv func(string) string, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	if env := getenv("GOMEMLIMIT"); env != "" {
		result := Result{Source: SourceGoMemLimit}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logger.Info("GOMEMLIMIT set via environment", zap.String("value", env))
		return result
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		logger.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return Result{Source: SourceNone}
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		logger.Warn("Ignoring invalid MEMORY_LIMIT", zap.String("value", raw))
		return Result{Source: SourceNone}
	}

	ratio := DefaultMemoryRatio
	if s := getenv("MEMORY_RATIO"); s != "" {
		parsed, err := strconv.ParseFloat(s, 64)
		switch {
		case err != nil:
			logger.Warn("Failed to parse MEMORY_RATIO, using default",
				zap.String("value", s), zap.Float64("default", DefaultMemoryRatio))
		case parsed <= 0 || parsed > 1:
			logger.Warn("MEMORY_RATIO out of range (0.0-1.0], using default",
				zap.String("value", s), zap.Float64("default", DefaultMemoryRatio))
		default:
			ratio = parsed
		}
	}

	goMemLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logger.Info("Configured GOMEMLIMIT",
		zap.String("limit", humanize.IBytes(uint64(goMemLimit))),
		zap.String("container_limit", humanize.IBytes(uint64(limit))),
		zap.Float64("ratio", ratio))

	return Result{
		Configured:     true,
		Source:         SourceMemoryLimit,
		ContainerLimit: limit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}
