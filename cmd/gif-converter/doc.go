// Package main provides the entry point for the GIF converter service.
//
// The service accepts animated GIF uploads over HTTP and returns them as
// animated WebP or APNG, either one at a time or as a ZIP archive of a batch.
// Encoding is delegated to the ffmpeg and img2webp command line tools.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads environment variables and prepares the work directory
//  2. History Database: Opens the SQLite conversion ledger (optional)
//  3. Workspace: Sweeps orphaned request directories left by a previous run
//  4. Codec Check: Logs ffmpeg/img2webp availability and versions
//  5. HTTP Server Setup: Routes, middleware, metrics server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 3000):
//     - POST /convert and POST /convert-batch
//     - GET /api/health, /api/stats, /api/history
//     - Health checks /healthz, /livez, /readyz and /version
//     - Static landing page from STATIC_DIR
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests and drain in-flight ones (30s timeout)
//  2. Stop the metrics collector and history pruning
//  3. Kill any codec subprocess still running
//  4. Remove every workspace, including those waiting for deferred release
//  5. Shutdown metrics server, libvips and the database
//
// # Build Requirements
//
// CGO is required for SQLite and libvips. ffmpeg and img2webp (from libwebp)
// must be on PATH or configured with FFMPEG_PATH and IMG2WEBP_PATH.
//
//	go build -o gif-converter ./cmd/gif-converter
package main
