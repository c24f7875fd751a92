// Package process runs external codec binaries with a hard timeout.
//
// Run blocks until the subprocess exits and classifies the outcome:
//
//   - ErrLaunch: the binary could not be started (missing, not executable)
//   - ErrFailed: the process exited non-zero; the error carries the exit code
//     and the tail of stderr
//   - ErrTimedOut: the per-invocation timeout elapsed; the process group was
//     sent SIGKILL
//   - ErrCanceled: the caller's context was canceled (client disconnect,
//     server shutdown); the process group was sent SIGKILL
//
// The timeout is a context deadline derived from the caller's context, so it
// is always released when the process exits. A Runner tracks live processes
// so Cleanup can kill them during shutdown.
package process
