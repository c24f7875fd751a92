package handlers

import (
	"net/http"
	"time"

	"gif-converter/internal/database"
	"gif-converter/internal/streaming"
	"gif-converter/internal/transcoder"
	"gif-converter/internal/workspace"
)

// Convert handles a single GIF conversion.
// POST /convert (multipart field "gif"; optional format, quality, resize)
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	if uerr := h.parseUpload(w, r, h.config.MaxUploadBytes()+formOverhead, msgNoFile); uerr != nil {
		uerr.write(w)
		return
	}
	defer removeForm(r)

	files := r.MultipartForm.File[singleField]
	if len(files) == 0 {
		(&uploadError{http.StatusBadRequest, reasonMissing, msgNoFile}).write(w)
		return
	}
	fh := files[0]
	if uerr := h.validateFile(fh); uerr != nil {
		uerr.write(w)
		return
	}

	opts := conversionOptions(r)

	handle, size, err := h.stage(fh)
	if err != nil {
		log.Error("failed to stage %s: %v", fh.Filename, err)
		writeJSONError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	log.Debug("staged %s (%d bytes) in workspace %s", fh.Filename, size, handle.ID())

	rec := &database.ConversionRecord{
		Kind:          database.KindSingle,
		Format:        string(opts.Format),
		OriginalName:  fh.Filename,
		SourceBytes:   size,
		Quality:       opts.Quality,
		ResizePercent: opts.ResizePercent,
	}
	start := time.Now()

	result, err := h.converter.Convert(r.Context(), transcoder.NewRequest(handle.UploadPath(), fh.Filename, opts), handle)
	if err != nil {
		handle.Release(workspace.Immediate)

		rec.Status = database.StatusError
		rec.Error = err.Error()
		rec.Duration = time.Since(start)
		h.record(r.Context(), rec)

		if r.Context().Err() != nil {
			log.Info("client went away while converting %s", fh.Filename)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer handle.Release(workspace.Deferred(h.config.CleanupDelay))

	rec.Status = database.StatusSuccess
	rec.OutputName = result.OutputName
	rec.OutputBytes = result.Size
	rec.Duration = result.Duration
	h.record(r.Context(), rec)

	if _, err := streaming.ServeDownload(r.Context(), w, result.OutputPath, result.OutputName, result.ContentType(), h.stream); err != nil {
		logDeliveryError(result.OutputName, err)
	}
}

func logDeliveryError(name string, err error) {
	if streaming.IsClientError(err) {
		log.Debug("download of %s interrupted: %v", name, err)
		return
	}
	log.Warn("failed to deliver %s: %v", name, err)
}
