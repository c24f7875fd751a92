/*
Package memory sets the Go runtime's soft memory limit for containers.

The Go runtime does not read cgroup memory limits. Without GOMEMLIMIT the
garbage collector only reacts to heap growth, so a burst of large uploads can
push the container past its limit while ffmpeg and img2webp are running in
the same cgroup.

ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT, which is normally
injected through the Kubernetes Downward API:

	env:
	  - name: MEMORY_LIMIT
	    valueFrom:
	      resourceFieldRef:
	        resource: limits.memory

Only DefaultMemoryRatio (half) of the limit goes to the Go heap. The rest is
left to the encoder child processes. MEMORY_RATIO overrides the share. An
explicit GOMEMLIMIT always wins and is only reported.
*/
package memory
