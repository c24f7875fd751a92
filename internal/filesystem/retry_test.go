package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ESTALE error", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"ENOENT error", syscall.ENOENT, false},
		{"generic error", os.ErrNotExist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"work":     "/work",
		"database": "/work/db",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/work", "work"},
		{"/work/convert/123-abc/upload.gif", "work"},
		{"/work/db", "database"},
		{"/work/db/history.db", "database"},
		{"/workspace/other", "unknown"},
		{"/etc/hosts", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_NilResolver(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/work/file"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want unknown", got)
	}
}

func TestRetryConfig_ResolveVolume(t *testing.T) {
	original := defaultResolver
	defer func() { defaultResolver = original }()

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"default": "/work"}))

	config := fastRetryConfig()
	if got := config.resolveVolume("/work/a"); got != "default" {
		t.Errorf("Expected package default resolver, got %q", got)
	}

	config.VolumeResolver = NewVolumeResolver(map[string]string{"override": "/work"})
	if got := config.resolveVolume("/work/a"); got != "override" {
		t.Errorf("Expected config resolver, got %q", got)
	}
}

func TestWithRetry_RetriesStaleHandles(t *testing.T) {
	calls := 0
	got, err := withRetry("stat", "/work/x", fastRetryConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &os.PathError{Op: "stat", Path: "/work/x", Err: syscall.ESTALE}
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	_, err := withRetry("open", "/work/x", fastRetryConfig(), func() (string, error) {
		calls++
		return "", syscall.ESTALE
	})

	if !errors.Is(err, syscall.ESTALE) {
		t.Errorf("Expected ESTALE, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected 1 attempt + 3 retries, got %d calls", calls)
	}
}

func TestWithRetry_NoRetryForOtherErrors(t *testing.T) {
	calls := 0
	_, err := withRetry("stat", "/work/x", fastRetryConfig(), func() (int, error) {
		calls++
		return 0, fmt.Errorf("wrapped: %w", os.ErrPermission)
	})

	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("Expected permission error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected single attempt, got %d", calls)
	}
}

func TestStatAndOpenWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.webp")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, fastRetryConfig())
	if err != nil || info.Size() != 4 {
		t.Fatalf("StatWithRetry() = %v, %v", info, err)
	}

	f, err := OpenWithRetry(path, fastRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v", err)
	}
	f.Close()

	if _, err := OpenWithRetry(filepath.Join(dir, "missing"), fastRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestRequireNonEmpty(t *testing.T) {
	dir := t.TempDir()

	full := filepath.Join(dir, "full.png")
	if err := os.WriteFile(full, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.png")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if size, err := RequireNonEmpty(full, fastRetryConfig()); err != nil || size != 4 {
		t.Errorf("RequireNonEmpty(full) = %d, %v", size, err)
	}
	if _, err := RequireNonEmpty(empty, fastRetryConfig()); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Expected ErrEmptyFile, got %v", err)
	}
	if _, err := RequireNonEmpty(filepath.Join(dir, "missing.png"), fastRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
	if _, err := RequireNonEmpty(dir, fastRetryConfig()); err == nil {
		t.Error("Expected error for directory")
	}
}
