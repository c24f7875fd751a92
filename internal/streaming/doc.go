/*
Package streaming delivers converted files to HTTP clients as attachments.

ServeDownload opens a finished artifact, sets the attachment headers and
copies the file through a TimeoutWriter, which guards the response against
clients that stall or disconnect:

  - each write must complete within WriteTimeout
  - the stream is abandoned when no write succeeds for IdleTimeout
  - writes are split into ChunkSize pieces and flushed between chunks
  - cancellation of the request context stops the copy with ErrClientGone

# Usage

	n, err := streaming.ServeDownload(r.Context(), w, result.OutputPath,
		result.OutputName, "image/webp", streaming.DefaultConfig())
	if err != nil && !streaming.IsClientError(err) {
		logging.Error("download failed: %v", err)
	}

Headers are written before the first byte, so a failure part way through
cannot be turned into a JSON error response. Callers log it and release the
workspace.
*/
package streaming
