package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeMetricsPopulatesLabels(t *testing.T) {
	InitializeMetrics()

	assert.Equal(t, 2, testutil.CollectAndCount(ScansTotal))
	assert.Equal(t, 3, testutil.CollectAndCount(ScanLastChanges))
	assert.Equal(t, 3, testutil.CollectAndCount(CrawlEntriesSkipped))
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	errorsBefore := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("data", "lstat"))
	staleBefore := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("lstat", "data"))

	// One lstat that recovers after a stale handle, one that gives up, one plain failure.
	obs.ObserveStaleError("lstat", "data")
	obs.ObserveRetryAttempt("lstat", "data")
	obs.ObserveRetrySuccess("lstat", "data")
	obs.ObserveRetryDuration("lstat", "data", 0.05)
	obs.ObserveOperation("data", "lstat", 0.05, nil)

	obs.ObserveStaleError("lstat", "data")
	obs.ObserveRetryFailure("lstat", "data")
	obs.ObserveOperation("data", "lstat", 0.2, errors.New("stale"))

	obs.ObserveOperation("data", "lstat", 0.001, errors.New("gone"))

	assert.Equal(t, FilesystemTotals{
		Operations:   3,
		Failures:     2,
		StaleHandles: 2,
		Recovered:    1,
		Exhausted:    1,
	}, obs.Totals())

	assert.Equal(t, 2.0, testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("data", "lstat"))-errorsBefore)
	assert.Equal(t, 2.0, testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("lstat", "data"))-staleBefore)
}

func TestFilesystemObserverConcurrentUse(t *testing.T) {
	obs := NewFilesystemObserver()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				obs.ObserveOperation("data", "lstat", 0.001, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), obs.Totals().Operations)
}

type mockStatsProvider struct {
	mu    sync.Mutex
	calls int
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCollectorCollectsImmediatelyAndStops(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		TrackedFiles:      1200,
		OpenScanRuns:      1,
		FinalizedScanRuns: 9,
		OpenConnections:   2,
	}}

	c := NewCollector(provider, 20*time.Millisecond)
	c.Start()
	time.Sleep(70 * time.Millisecond)
	c.Stop()
	c.Stop()

	require.GreaterOrEqual(t, provider.callCount(), 2)
	assert.Equal(t, 1200.0, testutil.ToFloat64(TrackedFilesTotal))
	assert.Equal(t, 9.0, testutil.ToFloat64(ScanRunsStored.WithLabelValues("finalized")))

	calls := provider.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, provider.callCount(), "collector kept running after Stop")
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	assert.NotPanics(t, c.Stop)
}

func TestRecordStats(t *testing.T) {
	RecordStats(Stats{TrackedFiles: 7, OpenScanRuns: 2, FinalizedScanRuns: 3, OpenConnections: 1})

	assert.Equal(t, 7.0, testutil.ToFloat64(TrackedFilesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(ScanRunsStored.WithLabelValues("open")))
	assert.Equal(t, 3.0, testutil.ToFloat64(ScanRunsStored.WithLabelValues("finalized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DBConnectionsOpen))
}

func TestMetricsConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				CrawlRecordsTotal.Inc()
				HTTPRequestsTotal.WithLabelValues("GET", "/api/scans", "200").Inc()
				DBQueryDuration.WithLabelValues("start_scan").Observe(0.001)
			}
		}()
	}
	wg.Wait()
	assert.Positive(t, testutil.ToFloat64(CrawlRecordsTotal))
}
