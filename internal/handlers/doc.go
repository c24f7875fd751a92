// Package handlers provides the HTTP handlers of the conversion service.
//
// It includes handlers for:
//   - Single GIF conversion (POST /convert)
//   - Batch conversion into a ZIP archive (POST /convert-batch)
//   - Health, liveness and readiness checks
//   - Conversion history statistics and version information
package handlers
