// Package workspace allocates per-request scratch directories and guarantees
// that each one is removed exactly once.
//
// Every Handle owns a uniquely named directory below the manager's root:
//
//	<root>/<kind>/<unix-nanos>-<uuid>/
//	    upload.gif      source bytes written by the HTTP layer
//	    frames/         still frames extracted for WebP assembly (lazy)
//	    <output name>   converted animation or batch archive
//
// Handles are released either immediately, which deletes synchronously, or
// deferred, which schedules deletion after a grace period so a slow client
// can finish downloading. A deferred release is a cancellable task: an
// Immediate release of the same handle cancels it, and Manager.Shutdown
// flushes every pending release before the process exits. Release is
// idempotent and cleanup failures are logged, never returned.
//
// The root is always passed in explicitly; the package never consults the
// process temp directory on its own.
package workspace
