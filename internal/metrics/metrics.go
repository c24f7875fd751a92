package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gif_converter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	UploadsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_uploads_rejected_total",
			Help: "Total number of rejected uploads by reason",
		},
		[]string{"reason"}, // "missing", "type", "size", "count", "parse"
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_conversions_total",
			Help: "Total number of conversions by target format and outcome",
		},
		[]string{"format", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gif_converter_conversion_duration_seconds",
			Help:    "Conversion pipeline duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"format"},
	)

	ConversionBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_conversion_bytes_total",
			Help: "Total bytes read from sources and written to outputs",
		},
		[]string{"direction"}, // "in", "out"
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_conversions_in_progress",
			Help: "Number of conversions currently running",
		},
	)

	ExtractedFrames = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gif_converter_extracted_frames",
			Help:    "Number of still frames extracted per WebP conversion",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// Batch metrics
var (
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_batch_items_total",
			Help: "Total number of batch items by outcome",
		},
		[]string{"status"},
	)

	BatchArchiveEntries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gif_converter_batch_archive_entries",
			Help:    "Number of entries written per batch archive",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
		},
	)
)

// External process metrics
var (
	ProcessRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_process_runs_total",
			Help: "Total number of external process invocations by tool and outcome",
		},
		[]string{"tool", "status"}, // status: "success", "failed", "timeout", "canceled", "launch_error"
	)

	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gif_converter_process_duration_seconds",
			Help:    "External process wall time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	ProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_processes_running",
			Help: "Number of external processes currently running",
		},
	)

	ProcessesWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_processes_waiting",
			Help: "Number of external processes queued for a free slot",
		},
	)
)

// Workspace metrics
var (
	WorkspaceHandlesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_workspace_handles_active",
			Help: "Number of allocated, unreleased workspace handles",
		},
	)

	WorkspacePendingReleases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_workspace_pending_releases",
			Help: "Number of deferred workspace releases waiting to fire",
		},
	)

	WorkspaceReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_workspace_releases_total",
			Help: "Total number of workspace releases by mode and outcome",
		},
		[]string{"mode", "status"}, // mode: "immediate", "deferred", "shutdown", "sweep"
	)

	WorkspaceDiskBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gif_converter_workspace_disk_bytes",
			Help: "Bytes currently held under the workspace root",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retry attempts due to stale handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_filesystem_stale_errors_total",
			Help: "Total number of stale file handle errors encountered",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gif_converter_filesystem_retry_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "volume"},
	)
)

// History database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gif_converter_db_queries_total",
			Help: "Total number of history database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gif_converter_db_query_duration_seconds",
			Help:    "History database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	HistoryConversionsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gif_converter_history_conversions",
			Help: "Conversions recorded in the history database by format and outcome",
		},
		[]string{"format", "status"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gif_converter_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
