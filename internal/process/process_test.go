package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gif-converter/internal/workers"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunSuccess(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	res, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out")
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err")
	}
	if res.Duration <= 0 {
		t.Error("Duration should be positive")
	}
	if r.Running() != 0 {
		t.Errorf("Running() = %d after exit, want 0", r.Running())
	}
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	_, err := r.Run(context.Background(), "sh", []string{"-c", "echo 'Invalid data found' >&2; exit 3"}, 5*time.Second)
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("error = %v, want ErrFailed", err)
	}

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if perr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", perr.ExitCode)
	}
	if !strings.Contains(perr.Stderr, "Invalid data found") {
		t.Errorf("Stderr = %q, want diagnostic text", perr.Stderr)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("Error() = %q, want last stderr line", err.Error())
	}
	if errors.Is(err, ErrTimedOut) || errors.Is(err, ErrLaunch) {
		t.Error("failed process must not match other kinds")
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner()

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "no-such-tool"), nil, time.Second)
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("error = %v, want ErrLaunch", err)
	}
}

func TestRunNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewRunner().Run(context.Background(), path, nil, time.Second)
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("error = %v, want ErrLaunch", err)
	}
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	start := time.Now()
	_, err := r.Run(context.Background(), "sh", []string{"-c", "sleep 10"}, 200*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("error = %v, want ErrTimedOut", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run took %v, want prompt kill after timeout", elapsed)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRunCanceled(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Run(ctx, "sh", []string{"-c", "sleep 10"}, time.Minute)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("error = %v, want ErrCanceled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("canceled process was not killed promptly")
	}
}

func TestCleanupKillsRunning(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "sh", []string{"-c", "sleep 10"}, time.Minute)
		done <- err
	}()

	deadline := time.Now().Add(3 * time.Second)
	for r.Running() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("process never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	r.Cleanup()

	select {
	case err := <-done:
		if !errors.Is(err, ErrFailed) {
			t.Errorf("error = %v, want ErrFailed for killed process", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Cleanup did not kill the process")
	}
}

func TestKindSentinels(t *testing.T) {
	tests := []struct {
		kind Kind
		want error
	}{
		{KindLaunch, ErrLaunch},
		{KindFailed, ErrFailed},
		{KindTimedOut, ErrTimedOut},
		{KindCanceled, ErrCanceled},
	}

	for _, tt := range tests {
		err := &Error{Tool: "ffmpeg", Kind: tt.kind, Err: errors.New("x")}
		if !errors.Is(err, tt.want) {
			t.Errorf("Kind %d: errors.Is(%v) = false", tt.kind, tt.want)
		}
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("first\nsecond\n"); got != "second" {
		t.Errorf("lastLine() = %q, want %q", got, "second")
	}
	if got := lastLine(""); got != "" {
		t.Errorf("lastLine(\"\") = %q", got)
	}
	if got := tail("abcdef", 3); got != "def" {
		t.Errorf("tail() = %q, want %q", got, "def")
	}
}

func TestCheck(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	path, err := r.Check("sh")
	if err != nil {
		t.Fatalf("Check(sh) error = %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("Check(sh) = %q, want absolute path", path)
	}

	if _, err := r.Check("definitely-not-a-codec-binary"); !errors.Is(err, ErrLaunch) {
		t.Errorf("Check(missing) error = %v, want ErrLaunch", err)
	}
}

func TestRunWaitsForSlot(t *testing.T) {
	requireShell(t)
	r := NewRunner()
	r.Slots = workers.NewLimiter(1)

	if err := r.Slots.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	_, err := r.Run(context.Background(), "sh", []string{"-c", "true"}, 50*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Run() error = %v, want ErrTimedOut while queued", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, "sh", []string{"-c", "true"}, time.Second)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Run() error = %v, want ErrCanceled while queued", err)
	}

	r.Slots.Release()

	if _, err := r.Run(context.Background(), "sh", []string{"-c", "true"}, 5*time.Second); err != nil {
		t.Fatalf("Run() error = %v after slot freed", err)
	}
	if r.Slots.InUse() != 0 {
		t.Errorf("InUse() = %d after Run, want 0", r.Slots.InUse())
	}
}

func TestRunContextCancelReleasesDerivedContext(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{"no timeout", 0, false},
		{"with timeout", time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, parentCancel := context.WithCancel(context.Background())
			defer parentCancel()

			ctx, cancel := runContext(parent, tt.timeout)
			if _, ok := ctx.Deadline(); ok != tt.wantDeadline {
				t.Errorf("Deadline set = %v, want %v", ok, tt.wantDeadline)
			}

			cancel()
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
				t.Fatal("cancel did not end the derived context")
			}
			if parent.Err() != nil {
				t.Error("canceling the derived context must not cancel the parent")
			}
		})
	}
}
