package streaming

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gif-converter/internal/filesystem"
	"gif-converter/internal/logging"
)

// ServeDownload streams the file at path as an attachment named name and
// returns the number of body bytes written.
func ServeDownload(ctx context.Context, w http.ResponseWriter, path, name, contentType string, config Config) (int64, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to open download: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close download %s: %v", path, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat download: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", ContentDisposition(name))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("failed to close timeout writer: %v", err)
		}
	}()

	n, err := io.Copy(tw, f)
	written, elapsed := tw.Stats()
	logging.Debug("download %s: %d/%d bytes in %v", name, written, info.Size(), elapsed)

	return n, err
}

// ContentDisposition builds an attachment header for name. Names outside
// printable ASCII also get an RFC 5987 filename* parameter.
func ContentDisposition(name string) string {
	var ascii strings.Builder
	needsExtended := false
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			ascii.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			needsExtended = true
		case r > 0x7e:
			ascii.WriteRune('_')
			needsExtended = true
		default:
			ascii.WriteRune(r)
		}
	}

	value := `attachment; filename="` + ascii.String() + `"`
	if needsExtended {
		value += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return value
}
