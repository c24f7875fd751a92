package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"gif-converter/internal/encoding"
	"gif-converter/internal/metrics"
	"gif-converter/internal/workspace"
)

const (
	// formMemory is how much of a multipart body is held in memory before
	// file parts spill to disk.
	formMemory = 8 << 20
	// formOverhead allows for multipart boundaries and text fields on top of
	// the file size limits.
	formOverhead = 1 << 20

	singleField = "gif"
	batchField  = "gifs"

	gifContentType = "image/gif"
)

// Rejection reasons for metrics.UploadsRejectedTotal.
const (
	reasonMissing = "missing"
	reasonType    = "type"
	reasonSize    = "size"
	reasonCount   = "count"
	reasonParse   = "parse"
)

const (
	msgNoFile   = "No file uploaded"
	msgNoFiles  = "No files uploaded"
	msgOnlyGIFs = "Only GIF files are allowed!"
)

// uploadError is a client-side upload problem.
type uploadError struct {
	status  int
	reason  string
	message string
}

func (e *uploadError) write(w http.ResponseWriter) {
	metrics.UploadsRejectedTotal.WithLabelValues(e.reason).Inc()
	log.Debug("rejected upload (%s): %s", e.reason, e.message)
	writeJSONError(w, e.message, e.status)
}

// parseUpload parses the multipart body under a size limit of maxBytes.
func (h *Handlers) parseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, missing string) *uploadError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	err := r.ParseMultipartForm(formMemory)
	if err == nil {
		return nil
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return h.tooLarge()
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary), errors.Is(err, io.EOF):
		return &uploadError{http.StatusBadRequest, reasonMissing, missing}
	default:
		log.Debug("failed to parse multipart body: %v", err)
		return &uploadError{http.StatusBadRequest, reasonParse, "Invalid multipart upload"}
	}
}

func (h *Handlers) tooLarge() *uploadError {
	return &uploadError{
		status:  http.StatusRequestEntityTooLarge,
		reason:  reasonSize,
		message: fmt.Sprintf("File too large (max %d MB)", h.config.MaxUploadMB),
	}
}

// validateFile applies the per-file type and size rules.
func (h *Handlers) validateFile(fh *multipart.FileHeader) *uploadError {
	if !isGIF(fh) {
		return &uploadError{http.StatusBadRequest, reasonType, msgOnlyGIFs}
	}
	if fh.Size > h.config.MaxUploadBytes() {
		return h.tooLarge()
	}
	return nil
}

// isGIF checks the declared content type of the part.
func isGIF(fh *multipart.FileHeader) bool {
	mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	return err == nil && mediaType == gifContentType
}

// stage copies an uploaded part into a fresh workspace.
func (h *Handlers) stage(fh *multipart.FileHeader) (*workspace.Handle, int64, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Debug("failed to close upload %s: %v", fh.Filename, err)
		}
	}()

	return h.workspaces.Ingest(workspace.KindConvert, f)
}

// conversionOptions reads the shared form fields.
func conversionOptions(r *http.Request) encoding.Options {
	return encoding.Options{
		Format:        encoding.ParseFormat(r.FormValue("format")),
		Quality:       encoding.ParseInt(r.FormValue("quality"), encoding.DefaultQuality),
		ResizePercent: encoding.ParseInt(r.FormValue("resize"), encoding.DefaultResize),
	}.Normalize()
}

// removeForm deletes multipart temp files.
func removeForm(r *http.Request) {
	if r.MultipartForm == nil {
		return
	}
	if err := r.MultipartForm.RemoveAll(); err != nil {
		log.Debug("failed to remove multipart temp files: %v", err)
	}
}
