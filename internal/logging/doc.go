// Package logging provides a simple leveled logging interface for the
// GIF converter service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (subprocess arguments, stderr)
//   - INFO: General operational messages
//   - WARN: Warning conditions, including swallowed cleanup failures
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. Component loggers prefix each line with
// the owning package so conversion logs can be followed per stage.
package logging
