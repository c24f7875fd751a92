package handlers

import (
	"fmt"
	"net/http"
	"time"

	"gif-converter/internal/batch"
	"gif-converter/internal/database"
	"gif-converter/internal/streaming"
	"gif-converter/internal/workspace"
)

const zipContentType = "application/zip"

// ConvertBatch converts several GIFs with the same options and returns a ZIP.
// POST /convert-batch (multipart field "gifs"; optional format, quality, resize)
func (h *Handlers) ConvertBatch(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.config.MaxBatchFiles)*h.config.MaxUploadBytes() + formOverhead
	if uerr := h.parseUpload(w, r, maxBytes, msgNoFiles); uerr != nil {
		uerr.write(w)
		return
	}
	defer removeForm(r)

	files := r.MultipartForm.File[batchField]
	if len(files) == 0 {
		(&uploadError{http.StatusBadRequest, reasonMissing, msgNoFiles}).write(w)
		return
	}
	if len(files) > h.config.MaxBatchFiles {
		msg := fmt.Sprintf("Too many files (max %d)", h.config.MaxBatchFiles)
		(&uploadError{http.StatusBadRequest, reasonCount, msg}).write(w)
		return
	}
	for _, fh := range files {
		if uerr := h.validateFile(fh); uerr != nil {
			uerr.write(w)
			return
		}
	}

	opts := conversionOptions(r)

	items := make([]batch.Item, 0, len(files))
	var sourceBytes int64
	for _, fh := range files {
		item := batch.Item{Name: fh.Filename}
		handle, size, err := h.stage(fh)
		if err != nil {
			// The orchestrator records unstaged items as failures.
			log.Warn("failed to stage %s: %v", fh.Filename, err)
		} else {
			item.Handle = handle
			sourceBytes += size
		}
		items = append(items, item)
	}

	rec := &database.ConversionRecord{
		Kind:          database.KindBatch,
		Format:        string(opts.Format),
		OriginalName:  fmt.Sprintf("%d files", len(items)),
		SourceBytes:   sourceBytes,
		Quality:       opts.Quality,
		ResizePercent: opts.ResizePercent,
	}
	start := time.Now()

	archive, err := h.batches.Run(r.Context(), items, opts)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Status = database.StatusError
		rec.Error = err.Error()
		h.record(r.Context(), rec)

		if r.Context().Err() != nil {
			log.Info("client went away during batch of %d files", len(items))
			return
		}
		log.Error("batch conversion failed: %v", err)
		writeJSONError(w, "Batch conversion failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer archive.Handle.Release(workspace.Immediate)

	rec.Status = database.StatusSuccess
	rec.OutputName = archive.DownloadName
	rec.OutputBytes = archive.Size
	h.record(r.Context(), rec)

	if _, err := streaming.ServeDownload(r.Context(), w, archive.Path, archive.DownloadName, zipContentType, h.stream); err != nil {
		logDeliveryError(archive.DownloadName, err)
	}
}
