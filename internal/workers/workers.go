package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the crawl worker count.
const EnvOverride = "CRAWL_WORKERS"

// Kind describes how a pool spends its time.
type Kind float64

// Multipliers applied to GOMAXPROCS.
const (
	CPU   Kind = 1.0
	Mixed Kind = 1.5
	IO    Kind = 2.0
)

// Count returns a worker count for the given kind, capped at limit (0 means
// no cap). GOMAXPROCS already reflects container CPU quotas.
func Count(kind Kind, limit int) int {
	workers := int(float64(runtime.GOMAXPROCS(0)) * float64(kind))
	if workers < 1 {
		workers = 1
	}
	return capAt(workers, limit)
}

// Resolve picks the worker count for a crawl. An explicit positive value
// wins, then a positive CRAWL_WORKERS, then the IO heuristic.
func Resolve(configured, limit int) int {
	if configured > 0 {
		return capAt(configured, limit)
	}
	if n, ok := fromEnv(); ok {
		return capAt(n, limit)
	}
	return Count(IO, limit)
}

// ForIO returns the worker count for lstat-bound crawling, honoring CRAWL_WORKERS.
func ForIO(limit int) int {
	return Resolve(0, limit)
}

func fromEnv() (int, bool) {
	raw := os.Getenv(EnvOverride)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
