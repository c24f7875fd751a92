/*
Package workers sizes and bounds concurrent work in containerized
environments.

# Sizing

runtime.NumCPU reports the host's CPUs even when a cgroup limits the
container to fewer. GOMAXPROCS follows the container limit (Go 1.19+), so
Count and ForCPU derive worker counts from it:

	n := workers.ForCPU(8)     // 1 per CPU, at most 8
	n := workers.Count(0.5, 0) // half the CPUs, at least 1

Set MAX_PROCESSES to pin the count regardless of CPUs. The limit argument
still caps an override.

# Limiting

Limiter is a counting semaphore. The codec runner takes a slot for every
ffmpeg or img2webp invocation so that a burst of uploads queues instead of
forking one encoder per request:

	limiter := workers.NewLimiter(workers.ForCPU(0))

	if err := limiter.Acquire(ctx); err != nil {
		return err // ctx canceled while queued
	}
	defer limiter.Release()

A nil *Limiter is valid and never blocks.
*/
package workers
