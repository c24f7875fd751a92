package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gif-converter/internal/logging"
	"gif-converter/internal/metrics"
	"gif-converter/internal/workers"
)

var log = logging.Component("process")

// Sentinel errors matched with errors.Is against *Error.
var (
	ErrLaunch   = errors.New("process launch failed")
	ErrFailed   = errors.New("process exited with error")
	ErrTimedOut = errors.New("process timed out")
	ErrCanceled = errors.New("process canceled")
)

// Kind classifies a process failure.
type Kind int

const (
	// KindLaunch means the binary never started.
	KindLaunch Kind = iota
	// KindFailed means a non-zero exit.
	KindFailed
	// KindTimedOut means the invocation timeout elapsed.
	KindTimedOut
	// KindCanceled means the caller's context ended first.
	KindCanceled
)

func (k Kind) sentinel() error {
	switch k {
	case KindLaunch:
		return ErrLaunch
	case KindTimedOut:
		return ErrTimedOut
	case KindCanceled:
		return ErrCanceled
	default:
		return ErrFailed
	}
}

func (k Kind) metricStatus() string {
	switch k {
	case KindLaunch:
		return "launch_error"
	case KindTimedOut:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

// maxStderrTail bounds how much stderr is carried in an Error.
const maxStderrTail = 2048

// Error describes a failed invocation.
type Error struct {
	Tool     string
	Kind     Kind
	ExitCode int
	Timeout  time.Duration
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindLaunch:
		return fmt.Sprintf("%s: failed to start: %v", e.Tool, e.Err)
	case KindTimedOut:
		return fmt.Sprintf("%s: timed out after %v", e.Tool, e.Timeout)
	case KindCanceled:
		return fmt.Sprintf("%s: canceled: %v", e.Tool, e.Err)
	}

	msg := fmt.Sprintf("%s: exited with code %d", e.Tool, e.ExitCode)
	if line := lastLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result holds the captured output of a successful invocation.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external commands and tracks the ones still running.
type Runner struct {
	// WaitDelay bounds how long Wait blocks for output pipes after the
	// process has been killed.
	WaitDelay time.Duration

	// Slots bounds concurrent invocations. Nil means unbounded.
	Slots *workers.Limiter

	mu        sync.Mutex
	nextID    int
	processes map[int]*exec.Cmd
}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{
		WaitDelay: 2 * time.Second,
		processes: make(map[int]*exec.Cmd),
	}
}

// runContext derives the context one invocation runs under. A zero timeout
// leaves only the caller's deadline.
func runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// Run executes name with args and blocks until it exits, the timeout
// elapses, or ctx is canceled. A zero timeout disables the deadline.
func (r *Runner) Run(ctx context.Context, name string, args []string, timeout time.Duration) (*Result, error) {
	tool := filepath.Base(name)

	runCtx, cancel := runContext(ctx, timeout)
	defer cancel()

	if err := r.acquire(runCtx); err != nil {
		perr := &Error{Tool: tool, Kind: KindCanceled, Err: err}
		if ctx.Err() == nil {
			perr.Kind = KindTimedOut
			perr.Timeout = timeout
		}
		r.observe(tool, perr.Kind.metricStatus(), 0)
		log.Warn("%v while waiting for a process slot", perr)
		return nil, perr
	}
	defer r.Slots.Release()

	cmd := exec.CommandContext(runCtx, name, args...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("exec %s %s", tool, strings.Join(args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		perr := &Error{Tool: tool, Kind: KindLaunch, Err: err}
		r.observe(tool, perr.Kind.metricStatus(), time.Since(start))
		log.Error("%v", perr)
		return nil, perr
	}

	id := r.track(cmd)
	metrics.ProcessesRunning.Inc()
	waitErr := cmd.Wait()
	metrics.ProcessesRunning.Dec()
	r.untrack(id)

	duration := time.Since(start)

	if waitErr == nil {
		r.observe(tool, "success", duration)
		log.Debug("%s finished in %v", tool, duration)
		return &Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: duration,
		}, nil
	}

	perr := &Error{
		Tool:     tool,
		Kind:     KindFailed,
		ExitCode: -1,
		Timeout:  timeout,
		Stderr:   tail(stderr.String(), maxStderrTail),
		Err:      waitErr,
	}

	switch {
	case ctx.Err() != nil:
		perr.Kind = KindCanceled
		perr.Err = ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		perr.Kind = KindTimedOut
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
	}

	r.observe(tool, perr.Kind.metricStatus(), duration)
	log.Error("%v (after %v)", perr, duration)
	if perr.Stderr != "" {
		log.Debug("%s stderr:\n%s", tool, perr.Stderr)
	}

	return nil, perr
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.Slots == nil {
		return nil
	}
	metrics.ProcessesWaiting.Inc()
	defer metrics.ProcessesWaiting.Dec()
	return r.Slots.Acquire(ctx)
}

func (r *Runner) observe(tool, status string, d time.Duration) {
	metrics.ProcessRunsTotal.WithLabelValues(tool, status).Inc()
	metrics.ProcessDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (r *Runner) track(cmd *exec.Cmd) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.processes[r.nextID] = cmd
	return r.nextID
}

func (r *Runner) untrack(id int) {
	r.mu.Lock()
	delete(r.processes, id)
	r.mu.Unlock()
}

// Running returns the number of live processes.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processes)
}

// Cleanup kills every running process.
func (r *Runner) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cmd := range r.processes {
		if cmd.Process == nil {
			continue
		}
		log.Info("killing %s (pid %d)", filepath.Base(cmd.Path), cmd.Process.Pid)
		if err := killProcessGroup(cmd); err != nil {
			log.Warn("failed to kill pid %d: %v", cmd.Process.Pid, err)
		}
	}
}

// Check reports whether name resolves to an executable binary.
func (r *Runner) Check(name string) (string, error) {
	path, err := LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	return path, nil
}

// LookPath resolves a binary, returning its absolute path.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
