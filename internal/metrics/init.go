package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	formats := []string{"webp", "apng"}
	for _, f := range formats {
		for _, status := range []string{"success", "error"} {
			ConversionsTotal.WithLabelValues(f, status)
			HistoryConversionsTotal.WithLabelValues(f, status)
		}
		ConversionDuration.WithLabelValues(f)
	}

	for _, dir := range []string{"in", "out"} {
		ConversionBytesTotal.WithLabelValues(dir)
	}

	for _, status := range []string{"success", "error"} {
		BatchItemsTotal.WithLabelValues(status)
	}

	for _, tool := range []string{"ffmpeg", "img2webp"} {
		for _, status := range []string{"success", "failed", "timeout", "canceled", "launch_error"} {
			ProcessRunsTotal.WithLabelValues(tool, status)
		}
		ProcessDuration.WithLabelValues(tool)
	}

	for _, mode := range []string{"immediate", "deferred", "shutdown", "sweep"} {
		WorkspaceReleasesTotal.WithLabelValues(mode, "success")
		WorkspaceReleasesTotal.WithLabelValues(mode, "error")
	}

	for _, reason := range []string{"missing", "type", "size", "count", "parse"} {
		UploadsRejectedTotal.WithLabelValues(reason)
	}

	volumes := []string{"work", "database", "unknown"}
	for _, op := range []string{"stat", "open"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"initialize_schema", "record_conversion", "get_stats", "prune"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
