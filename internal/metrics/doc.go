// Package metrics provides Prometheus instrumentation for the GIF converter.
//
// All metrics are prefixed with "gif_converter_" and registered on the
// default registry via promauto, so the metrics server only needs to mount
// promhttp.Handler().
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of requests being processed
//   - UploadsRejectedTotal: Counter of rejected uploads by reason
//
// ## Conversion Metrics
//
//   - ConversionsTotal: Counter by target format and outcome
//   - ConversionDuration: Histogram of pipeline duration by format
//   - ConversionBytesTotal: Bytes read from sources and written to outputs
//   - ConversionsInProgress: Gauge of running conversions
//   - ExtractedFrames: Histogram of frames extracted per WebP conversion
//   - BatchItemsTotal, BatchArchiveEntries: batch outcomes and archive sizes
//
// ## External Process Metrics
//
//   - ProcessRunsTotal: Counter by tool (ffmpeg, img2webp) and outcome
//   - ProcessDuration: Histogram of subprocess wall time
//   - ProcessesRunning: Gauge of live subprocesses
//   - ProcessesWaiting: Gauge of invocations queued for a runner slot
//
// ## Workspace Metrics
//
//   - WorkspaceHandlesActive: Gauge of allocated, unreleased handles
//   - WorkspacePendingReleases: Gauge of scheduled deferred releases
//   - WorkspaceReleasesTotal: Counter by mode and outcome
//   - WorkspaceDiskBytes: Gauge of bytes under the workspace root (Collector)
//
// ## History Database Metrics
//
//   - DBQueryTotal, DBQueryDuration: history store query accounting
//   - HistoryConversionsTotal: Gauge of recorded conversions (Collector)
//
// The workspace package reports through the Observer returned by
// NewWorkspaceObserver, which keeps workspace free of a metrics import.
package metrics
