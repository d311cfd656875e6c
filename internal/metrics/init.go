package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	volumes := []string{"data", "staging", "unknown"}
	fsOps := []string{"lstat", "open"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, reason := range []string{"not_regular", "unreadable", "walk_error"} {
		CrawlEntriesSkipped.WithLabelValues(reason)
	}

	for _, outcome := range []string{"finalized", "failed"} {
		ScansTotal.WithLabelValues(outcome)
	}

	for _, phase := range []string{"created", "crawling", "loading", "diffing", "finalized"} {
		ScanPhaseDuration.WithLabelValues(phase)
	}

	for _, ct := range []string{"added", "modified", "deleted"} {
		ScanLastChanges.WithLabelValues(ct)
		ScanLastChangeBytes.WithLabelValues(ct)
	}

	for _, state := range []string{"open", "finalized"} {
		ScanRunsStored.WithLabelValues(state)
	}

	for _, op := range []string{"initialize_schema", "start_scan", "load_staging", "clear_staging",
		"compute_delta", "change_totals", "finalize_scan", "get_scan_run", "list_scan_runs",
		"list_changes", "open_scan_runs", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"load", "delta", "commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
