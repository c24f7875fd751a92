package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize skips responses whose declared Content-Length is smaller
	MinSize int
	// Level is the gzip compression level
	Level int
	// CompressibleTypes are media types worth compressing; converted
	// animations and archives are already compressed and are not listed
	CompressibleTypes []string
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/html",
			"text/css",
			"text/plain",
			"text/javascript",
			"application/json",
			"application/javascript",
			"image/svg+xml",
		},
	}
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// gzipResponseWriter decides on the first write, from the response headers,
// whether the body is compressed.
type gzipResponseWriter struct {
	http.ResponseWriter
	config    CompressionConfig
	gz        *gzip.Writer
	decided   bool
	compress  bool
	pooled    bool
	statusSet bool
}

func (g *gzipResponseWriter) decide(status int) {
	if g.decided {
		return
	}
	g.decided = true

	h := g.Header()
	g.compress = status != http.StatusNoContent &&
		status != http.StatusNotModified &&
		h.Get("Content-Encoding") == "" &&
		isCompressible(h.Get("Content-Type"), g.config.CompressibleTypes) &&
		!tooSmall(h.Get("Content-Length"), g.config.MinSize)

	if !g.compress {
		return
	}

	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")

	if g.config.Level == gzip.DefaultCompression {
		g.gz = gzipWriterPool.Get().(*gzip.Writer)
		g.pooled = true
		g.gz.Reset(g.ResponseWriter)
		return
	}
	gz, err := gzip.NewWriterLevel(g.ResponseWriter, g.config.Level)
	if err != nil {
		g.compress = false
		h.Del("Content-Encoding")
		return
	}
	g.gz = gz
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	if g.statusSet {
		return
	}
	g.statusSet = true
	g.decide(status)
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	if !g.statusSet {
		g.WriteHeader(http.StatusOK)
	}
	if g.compress {
		return g.gz.Write(p)
	}
	return g.ResponseWriter.Write(p)
}

func (g *gzipResponseWriter) Flush() {
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func (g *gzipResponseWriter) close() error {
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	if g.pooled {
		gzipWriterPool.Put(g.gz)
	}
	g.gz = nil
	return err
}

func isCompressible(contentType string, types []string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return false
	}
	for _, t := range types {
		if mediaType == t {
			return true
		}
	}
	return false
}

func tooSmall(contentLength string, minSize int) bool {
	if contentLength == "" {
		return false
	}
	n, err := strconv.Atoi(contentLength)
	return err == nil && n < minSize
}

// Compression returns a middleware that gzips text responses for clients that
// accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{ResponseWriter: w, config: config}
			defer func() { _ = gzw.close() }()

			next.ServeHTTP(gzw, r)
		})
	}
}
