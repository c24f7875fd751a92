// Package database keeps a SQLite ledger of conversions.
//
// Every single-file and batch-item conversion is recorded with its format,
// outcome, sizes and timing. The ledger backs the /api/stats endpoint and the
// history gauges exported to Prometheus. It stores no uploaded content.
//
// The database uses WAL mode and creates its schema on open.
package database
