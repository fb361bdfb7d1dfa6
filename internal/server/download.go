// download.go - Authenticated download and the shared file streaming path.
package server

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/logging"
	"secure-transfer/internal/storage"
)

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "transfer.download")
	defer span.End()

	start := time.Now()
	id, _ := IdentityFromContext(ctx)
	fileID := chi.URLParam(r, "id")
	ip := s.clientIP(r)

	rec, rc, err := s.deps.Files.Open(ctx, fileID)
	if err != nil {
		s.metrics.RecordDownloadError()
		s.recordEvent(r, audit.Entry{Event: audit.EventDownloadFailed, TokenID: id.TokenID, FileID: fileID, ClientIP: ip, Error: err.Error()})
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	s.recordEvent(r, audit.Entry{Event: audit.EventDownloadSuccess, TokenID: id.TokenID, FileID: rec.ID, ClientIP: ip, Hash: rec.Hash, Size: rec.Size})
	s.streamFile(w, r, rec, rc)
	s.metrics.RecordDownload(rec.Size, time.Since(start))
}

// streamFile writes the stored bytes as an attachment.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request, rec storage.StoredFile, rc io.Reader) {
	h := w.Header()
	h.Set("Content-Type", rec.MIME)
	h.Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	h.Set("Content-Disposition", contentDisposition(rec.OriginalName))
	h.Set("X-Content-SHA256", rec.Hash)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		logging.Warn("download interrupted", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"file_id":    rec.ID,
			"error":      err.Error(),
		})
	}
}

// contentDisposition quotes or RFC 2231-encodes the name as needed.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
