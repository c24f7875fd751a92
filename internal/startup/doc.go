// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// Invalid values fall back to their defaults with a warning:
//
//   - PORT: HTTP server port (default: 3000)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - WORK_DIR: Root for per-request workspaces (default: $TMPDIR/gif-converter)
//   - DATABASE_DIR: Conversion history database directory (default: $WORK_DIR/db)
//   - HISTORY_ENABLED: Record conversions in SQLite (default: true)
//   - HISTORY_RETENTION: Age after which history rows are pruned (default: 720h)
//   - STATIC_DIR: Landing page directory (default: public)
//   - FFMPEG_PATH, IMG2WEBP_PATH: Codec binaries (default: looked up in PATH)
//   - WEBP_ENCODER: img2webp (two stage) or ffmpeg (single pass) (default: img2webp)
//   - PROCESS_TIMEOUT: Limit per codec invocation (default: 2m)
//   - MAX_PROCESSES: Concurrent codec invocations, extra ones queue (default: GOMAXPROCS)
//   - MAX_FRAMES: Frames extraction may write for one WebP conversion (default: 3000)
//   - MEMORY_LIMIT, MEMORY_RATIO: Container limit used to derive GOMEMLIMIT (see package memory)
//   - CLEANUP_DELAY: Delay before a single conversion's workspace is removed (default: 60s)
//   - SWEEP_MAX_AGE: Age of orphaned workspaces removed at startup (default: 1h)
//   - MAX_UPLOAD_MB: Per-file upload limit (default: 50)
//   - MAX_BATCH_FILES: Files accepted by /convert-batch (default: 10)
//   - BATCH_EMPTY_IS_ERROR: Fail batches with no successful item (default: false)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log static file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogDatabaseInit], [LogWorkspaceInit], [LogToolsInit], [LogHTTPRoutes],
// [LogServerStarted] and the shutdown helpers print sectioned, consistent
// output through the logging package.
package startup
