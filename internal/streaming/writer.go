package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"gif-converter/internal/logging"
)

var (
	// ErrWriteTimeout means a single write did not finish in time.
	ErrWriteTimeout = errors.New("write timeout exceeded")
	// ErrClientGone means the request context was canceled mid-stream.
	ErrClientGone = errors.New("client disconnected")
	// ErrStreamCanceled means the writer was closed or went idle.
	ErrStreamCanceled = errors.New("stream canceled")
)

// IsClientError reports whether err was caused by the client rather than the
// server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrClientGone) || errors.Is(err, ErrWriteTimeout) || errors.Is(err, ErrStreamCanceled)
}

// Config bounds how long a download may stall.
type Config struct {
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ChunkSize splits large writes; 0 writes as received.
	ChunkSize int
}

// DefaultConfig returns download defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter with write and idle timeouts.
type TimeoutWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	config  Config
	idle    *time.Timer

	mu      sync.Mutex
	written int64
	started time.Time
	closed  bool
}

// NewTimeoutWriter creates a TimeoutWriter bound to ctx.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config Config) *TimeoutWriter {
	writerCtx, cancel := context.WithCancel(ctx)

	tw := &TimeoutWriter{
		w:       w,
		parent:  ctx,
		ctx:     writerCtx,
		cancel:  cancel,
		config:  config,
		started: time.Now(),
	}
	if f, ok := w.(http.Flusher); ok {
		tw.flusher = f
	}
	if config.IdleTimeout > 0 {
		tw.idle = time.AfterFunc(config.IdleTimeout, func() {
			logging.Warn("download idle for %v, abandoning stream", config.IdleTimeout)
			cancel()
		})
	}

	return tw
}

// Write implements io.Writer.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	var total int
	for len(p) > 0 {
		if err := tw.ctx.Err(); err != nil {
			return total, tw.contextError()
		}

		chunk := p
		if tw.config.ChunkSize > 0 && len(chunk) > tw.config.ChunkSize {
			chunk = p[:tw.config.ChunkSize]
		}

		n, err := tw.writeOnce(chunk)
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]

		if tw.flusher != nil && tw.config.ChunkSize > 0 {
			tw.flusher.Flush()
		}
	}
	return total, nil
}

func (tw *TimeoutWriter) writeOnce(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := tw.w.Write(p)
		done <- result{n, err}
	}()

	var timeout <-chan time.Time
	if tw.config.WriteTimeout > 0 {
		timer := time.NewTimer(tw.config.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err == nil {
			tw.mu.Lock()
			tw.written += int64(r.n)
			tw.mu.Unlock()
			if tw.idle != nil {
				tw.idle.Reset(tw.config.IdleTimeout)
			}
		}
		return r.n, r.err
	case <-timeout:
		tw.cancel()
		return 0, ErrWriteTimeout
	case <-tw.ctx.Done():
		return 0, tw.contextError()
	}
}

func (tw *TimeoutWriter) contextError() error {
	if tw.parent.Err() != nil {
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Close stops the idle timer. Further writes fail with ErrStreamCanceled.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true
	if tw.idle != nil {
		tw.idle.Stop()
	}
	tw.cancel()
	return nil
}

// Stats returns bytes written and time since creation.
func (tw *TimeoutWriter) Stats() (int64, time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written, time.Since(tw.started)
}
