package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gif-converter/internal/logging"

	"github.com/google/uuid"
)

var log = logging.Component("workspace")

// ErrClosed is returned by Allocate after Shutdown.
var ErrClosed = errors.New("workspace manager is shut down")

// Kind partitions the workspace root by purpose.
type Kind string

const (
	// KindConvert holds a single-file conversion.
	KindConvert Kind = "convert"
	// KindBatch holds a batch archive.
	KindBatch Kind = "batch"
)

// Kinds lists every directory the manager creates below its root.
var Kinds = []Kind{KindConvert, KindBatch}

const (
	uploadFileName = "upload.gif"
	frameDirName   = "frames"
)

// ReleaseMode selects synchronous or deferred deletion.
type ReleaseMode struct {
	delay time.Duration
}

// Immediate deletes the handle before Release returns.
var Immediate = ReleaseMode{}

// Deferred deletes the handle after delay. A non-positive delay behaves like Immediate.
func Deferred(delay time.Duration) ReleaseMode {
	return ReleaseMode{delay: delay}
}

// IsDeferred reports whether the mode schedules deletion.
func (m ReleaseMode) IsDeferred() bool {
	return m.delay > 0
}

func (m ReleaseMode) String() string {
	if m.IsDeferred() {
		return "deferred(" + m.delay.String() + ")"
	}
	return "immediate"
}

// Timer is the part of *time.Timer the manager needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Observer receives workspace lifecycle events. Implementations are provided
// by the metrics package.
type Observer interface {
	HandleAllocated()
	HandleReleased(mode string, err error)
	PendingChanged(pending int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithAfterFunc replaces the timer used for deferred releases.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *Manager) {
		m.afterFunc = f
	}
}

// Manager owns the workspace root and tracks every live handle.
type Manager struct {
	root      string
	observer  Observer
	afterFunc AfterFunc

	mu      sync.Mutex
	active  map[string]*Handle
	pending map[string]Timer
	closed  bool
}

// New creates a manager rooted at root, creating it if needed and checking
// that it is writable.
func New(root string, opts ...Option) (*Manager, error) {
	if root == "" {
		return nil, errors.New("workspace root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	testFile := filepath.Join(abs, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return nil, fmt.Errorf("workspace root is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		log.Warn("failed to remove write test file %s: %v", testFile, err)
	}

	m := &Manager{
		root:      abs,
		afterFunc: realAfterFunc,
		active:    make(map[string]*Handle),
		pending:   make(map[string]Timer),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Allocate creates a fresh handle directory of the given kind.
func (m *Manager) Allocate(kind Kind) (*Handle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.mu.Unlock()

	id := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + uuid.NewString()
	dir := filepath.Join(m.root, string(kind), id)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to allocate workspace: %w", err)
	}

	h := &Handle{
		id:   id,
		kind: kind,
		dir:  dir,
		mgr:  m,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove workspace %s allocated during shutdown: %v", id, err)
		}
		return nil, ErrClosed
	}
	m.active[id] = h
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.HandleAllocated()
	}
	log.Debug("allocated %s workspace %s", kind, id)

	return h, nil
}

// Ingest allocates a handle and copies r into its upload path. The handle is
// released immediately if the copy fails.
func (m *Manager) Ingest(kind Kind, r io.Reader) (*Handle, int64, error) {
	h, err := m.Allocate(kind)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.OpenFile(h.UploadPath(), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		m.Release(h, Immediate)
		return nil, 0, fmt.Errorf("failed to create upload file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		m.Release(h, Immediate)
		return nil, n, fmt.Errorf("failed to store upload: %w", err)
	}

	return h, n, nil
}

// Release deletes the handle now or schedules it for later. Releasing an
// already released handle is a no-op. An Immediate release cancels a pending
// deferred one.
func (m *Manager) Release(h *Handle, mode ReleaseMode) {
	if h == nil || h.mgr != m {
		return
	}

	if !mode.IsDeferred() {
		m.cancelPending(h.id)
		h.remove(m, "immediate")
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		h.remove(m, "shutdown")
		return
	}
	if h.released.Load() {
		m.mu.Unlock()
		return
	}
	if _, scheduled := m.pending[h.id]; scheduled {
		m.mu.Unlock()
		return
	}
	m.pending[h.id] = m.afterFunc(mode.delay, func() {
		if m.takePending(h.id) {
			h.remove(m, "deferred")
		}
	})
	pending := len(m.pending)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.PendingChanged(pending)
	}
	log.Debug("scheduled release of %s in %v", h.id, mode.delay)
}

// takePending removes id from the pending set, reporting whether it was present.
func (m *Manager) takePending(id string) bool {
	m.mu.Lock()
	_, ok := m.pending[id]
	delete(m.pending, id)
	pending := len(m.pending)
	m.mu.Unlock()

	if ok && m.observer != nil {
		m.observer.PendingChanged(pending)
	}
	return ok
}

func (m *Manager) cancelPending(id string) {
	m.mu.Lock()
	t, ok := m.pending[id]
	m.mu.Unlock()

	if ok {
		t.Stop()
		m.takePending(id)
	}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// Pending returns the number of scheduled deferred releases.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Active returns the number of allocated, unreleased handles.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown cancels every pending deferred release and deletes all remaining
// handles. Allocate fails afterwards and Deferred releases become immediate.
// Handles whose deferred release was canceled are always deleted. ctx only
// bounds the flush of handles still in use by requests.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	timers := m.pending
	m.pending = make(map[string]Timer)
	var deferred, inUse []*Handle
	for id, h := range m.active {
		if _, ok := timers[id]; ok {
			deferred = append(deferred, h)
		} else {
			inUse = append(inUse, h)
		}
	}
	m.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	if m.observer != nil {
		m.observer.PendingChanged(0)
	}

	for _, h := range deferred {
		h.remove(m, "shutdown")
	}

	flushed := 0
	for _, h := range inUse {
		if err := ctx.Err(); err != nil {
			log.Warn("shutdown interrupted with %d handles left: %v", len(inUse)-flushed, err)
			return err
		}
		h.remove(m, "shutdown")
		flushed++
	}

	log.Info("flushed %d workspace handles (%d were pending deferred release)", flushed+len(deferred), len(deferred))
	return nil
}

// Usage reports bytes held below the root and the number of live handles.
func (m *Manager) Usage() (bytes int64, handles int) {
	bytes, err := dirSize(m.root)
	if err != nil {
		log.Debug("failed to measure workspace usage: %v", err)
	}
	return bytes, m.Active()
}

// Sweep removes handle directories older than maxAge that this manager does
// not own, e.g. leftovers from a crashed process. It returns how many were removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, kind := range Kinds {
		kindDir := filepath.Join(m.root, string(kind))
		entries, err := os.ReadDir(kindDir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn("failed to read %s: %v", kindDir, err)
			}
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			m.mu.Lock()
			_, owned := m.active[entry.Name()]
			m.mu.Unlock()
			if owned {
				continue
			}

			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			path := filepath.Join(kindDir, entry.Name())
			err = os.RemoveAll(path)
			if m.observer != nil {
				m.observer.HandleReleased("sweep", err)
			}
			if err != nil {
				log.Warn("failed to sweep %s: %v", path, err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		log.Info("swept %d orphaned workspace directories", removed)
	}
	return removed
}

// Handle is one request's scratch directory.
type Handle struct {
	id   string
	kind Kind
	dir  string
	mgr  *Manager

	once     sync.Once
	released atomic.Bool
}

// ID returns the unique handle identifier.
func (h *Handle) ID() string {
	return h.id
}

// Kind returns the handle's kind.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Dir returns the handle directory.
func (h *Handle) Dir() string {
	return h.dir
}

// Released reports whether the handle has been deleted.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// UploadPath is where the uploaded source is stored.
func (h *Handle) UploadPath() string {
	return filepath.Join(h.dir, uploadFileName)
}

// OutputPath returns the path for a named output file inside the handle.
// The name is reduced to its base so it cannot escape the directory.
func (h *Handle) OutputPath(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == uploadFileName || base == frameDirName || base == "." || base == "/" {
		base = "output-" + base
	}
	return filepath.Join(h.dir, base)
}

// FrameDir returns the frame extraction directory, creating it on first use.
func (h *Handle) FrameDir() (string, error) {
	dir := filepath.Join(h.dir, frameDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create frame directory: %w", err)
	}
	return dir, nil
}

// Release is shorthand for h's manager releasing it.
func (h *Handle) Release(mode ReleaseMode) {
	h.mgr.Release(h, mode)
}

func (h *Handle) remove(m *Manager, mode string) {
	h.once.Do(func() {
		err := os.RemoveAll(h.dir)
		h.released.Store(true)
		m.forget(h.id)

		if m.observer != nil {
			m.observer.HandleReleased(mode, err)
		}
		if err != nil {
			log.Warn("failed to remove workspace %s (%s): %v", h.id, mode, err)
			return
		}
		log.Debug("released workspace %s (%s)", h.id, mode)
	})
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
