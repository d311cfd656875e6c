package metrics

import (
	"sync"
	"time"

	"fs-delta-tracker/internal/logging"
)

// StatsProvider reports the current contents of the metadata store.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current store statistics
type Stats struct {
	TrackedFiles      int64
	OpenScanRuns      int64
	FinalizedScanRuns int64
	OpenConnections   int
}

// Collector periodically copies store statistics into gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop ends the collection loop and waits for it to exit. Safe to call twice.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		<-c.done
	})
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}
	RecordStats(c.statsProvider.GetStats())
}

// RecordStats copies a store snapshot into the store gauges.
func RecordStats(stats Stats) {
	TrackedFilesTotal.Set(float64(stats.TrackedFiles))
	ScanRunsStored.WithLabelValues("open").Set(float64(stats.OpenScanRuns))
	ScanRunsStored.WithLabelValues("finalized").Set(float64(stats.FinalizedScanRuns))
	DBConnectionsOpen.Set(float64(stats.OpenConnections))

	logging.Debug("Metrics collected: tracked_files=%d, open_scans=%d, finalized_scans=%d",
		stats.TrackedFiles, stats.OpenScanRuns, stats.FinalizedScanRuns)
}
