package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cat.webp")
	if err := os.WriteFile(path, bytes.Repeat([]byte("w"), size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestServeDownload(t *testing.T) {
	path := writeFile(t, 200*1024)
	rec := httptest.NewRecorder()

	n, err := ServeDownload(context.Background(), rec, path, "cat.webp", "image/webp", DefaultConfig())
	if err != nil {
		t.Fatalf("ServeDownload() error = %v", err)
	}
	if n != 200*1024 {
		t.Errorf("wrote %d bytes, want %d", n, 200*1024)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	tests := map[string]string{
		"Content-Type":           "image/webp",
		"Content-Disposition":    `attachment; filename="cat.webp"`,
		"Content-Length":         "204800",
		"X-Content-Type-Options": "nosniff",
	}
	for header, want := range tests {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Body.Len() != 200*1024 {
		t.Errorf("body length = %d", rec.Body.Len())
	}
}

func TestServeDownloadMissingFile(t *testing.T) {
	rec := httptest.NewRecorder()

	_, err := ServeDownload(context.Background(), rec, filepath.Join(t.TempDir(), "gone.webp"), "gone.webp", "image/webp", DefaultConfig())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("headers must not be written when the file cannot be opened")
	}
}

func TestServeDownloadClientGone(t *testing.T) {
	path := writeFile(t, 1024)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ServeDownload(ctx, httptest.NewRecorder(), path, "cat.webp", "image/webp", DefaultConfig())
	if !errors.Is(err, ErrClientGone) {
		t.Fatalf("error = %v, want ErrClientGone", err)
	}
	if !IsClientError(err) {
		t.Error("IsClientError() should be true")
	}
}

// stalledWriter blocks every Write until release is closed.
type stalledWriter struct {
	header  http.Header
	release chan struct{}
}

func (s *stalledWriter) Header() http.Header { return s.header }
func (s *stalledWriter) WriteHeader(int)     {}
func (s *stalledWriter) Write(p []byte) (int, error) {
	<-s.release
	return len(p), nil
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	w := &stalledWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(w.release)

	tw := NewTimeoutWriter(context.Background(), w, Config{WriteTimeout: 50 * time.Millisecond})
	defer tw.Close()

	start := time.Now()
	_, err := tw.Write([]byte("data"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("error = %v, want ErrWriteTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("write timeout took %v", time.Since(start))
	}
}

func TestTimeoutWriterChunks(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), rec, Config{ChunkSize: 10})
	defer tw.Close()

	n, err := tw.Write(bytes.Repeat([]byte("x"), 95))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 95 {
		t.Errorf("Write() = %d, want 95", n)
	}
	if !rec.Flushed {
		t.Error("chunked writes should flush")
	}

	written, _ := tw.Stats()
	if written != 95 {
		t.Errorf("Stats() bytes = %d, want 95", written)
	}
}

func TestTimeoutWriterClosed(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Write after Close error = %v, want ErrStreamCanceled", err)
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"cat.webp", `attachment; filename="cat.webp"`},
		{"converted-files.zip", `attachment; filename="converted-files.zip"`},
		{`we"ird.png`, `attachment; filename="we_ird.png"`},
		{"café.webp", `attachment; filename="caf_.webp"; filename*=UTF-8''caf%C3%A9.webp`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentDisposition(tt.name); got != tt.want {
				t.Errorf("ContentDisposition(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	if IsClientError(errors.New("disk full")) {
		t.Error("unrelated errors are not client errors")
	}
	for _, err := range []error{ErrClientGone, ErrWriteTimeout, ErrStreamCanceled} {
		if !IsClientError(err) {
			t.Errorf("IsClientError(%v) = false", err)
		}
	}
}
