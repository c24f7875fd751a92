/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

The converter's workspace root is frequently a network or overlay mount in container
deployments. Output verification and download streaming go through StatWithRetry and
OpenWithRetry so a transient ESTALE does not turn a finished conversion into a 500.

# Usage

	size, err := filesystem.RequireNonEmpty(outputPath, filesystem.DefaultRetryConfig())
	if err != nil {
	    // missing or empty output
	}

	f, err := filesystem.OpenWithRetry(outputPath, filesystem.DefaultRetryConfig())

# Metrics

Retries, successes, failures and ESTALE occurrences are recorded per operation and
volume. Volumes are resolved by longest-prefix match against the resolver installed
with SetDefaultVolumeResolver ("work", "database"); unmatched paths are "unknown".
*/
package filesystem
