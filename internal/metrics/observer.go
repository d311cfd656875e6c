package metrics

import "sync/atomic"

// FilesystemObserver feeds retrying filesystem calls into the Prometheus
// filesystem series and keeps totals for the current process, so a command
// can report how the storage behaved during its run.
type FilesystemObserver struct {
	operations atomic.Int64
	failures   atomic.Int64
	stale      atomic.Int64
	recovered  atomic.Int64
	exhausted  atomic.Int64
}

// FilesystemTotals is a snapshot of a FilesystemObserver.
type FilesystemTotals struct {
	Operations int64
	Failures   int64
	// StaleHandles counts ESTALE results, including ones later recovered.
	StaleHandles int64
	Recovered    int64
	Exhausted    int64
}

// NewFilesystemObserver returns an observer for filesystem.SetObserver.
func NewFilesystemObserver() *FilesystemObserver {
	return &FilesystemObserver{}
}

// Totals returns the counts observed so far.
func (o *FilesystemObserver) Totals() FilesystemTotals {
	return FilesystemTotals{
		Operations:   o.operations.Load(),
		Failures:     o.failures.Load(),
		StaleHandles: o.stale.Load(),
		Recovered:    o.recovered.Load(),
		Exhausted:    o.exhausted.Load(),
	}
}

func (o *FilesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	o.operations.Add(1)
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err == nil {
		return
	}
	o.failures.Add(1)
	FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
}

func (o *FilesystemObserver) ObserveStaleError(op, volume string) {
	o.stale.Add(1)
	FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
}

func (o *FilesystemObserver) ObserveRetryAttempt(op, volume string) {
	FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
}

func (o *FilesystemObserver) ObserveRetrySuccess(op, volume string) {
	o.recovered.Add(1)
	FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
}

func (o *FilesystemObserver) ObserveRetryFailure(op, volume string) {
	o.exhausted.Add(1)
	FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
}

func (o *FilesystemObserver) ObserveRetryDuration(op, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(op, volume).Observe(durationSeconds)
}
