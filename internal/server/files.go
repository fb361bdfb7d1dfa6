// files.go - File status and deletion handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/transfer"
)

// statusResponse is the public view of a stored file. The storage name is
// internal and not exposed.
type statusResponse struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	MIME         string    `json:"mime"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	UploadedAt   time.Time `json:"uploaded_at"`
	OwnerID      string    `json:"owner_id"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "transfer.status")
	defer span.End()

	fileID := chi.URLParam(r, "id")
	ok, err := s.deps.Files.Exists(ctx, fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, transfer.ErrNotFound)
		return
	}
	rec, err := s.deps.Files.Retrieve(ctx, fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, statusResponse{
		ID:           rec.ID,
		OriginalName: rec.OriginalName,
		MIME:         rec.MIME,
		Size:         rec.Size,
		Hash:         rec.Hash,
		UploadedAt:   rec.UploadedAt,
		OwnerID:      rec.OwnerID,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "transfer.delete")
	defer span.End()

	id, _ := IdentityFromContext(ctx)
	fileID := chi.URLParam(r, "id")

	if err := s.deps.Files.Delete(ctx, fileID); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordEvent(r, audit.Entry{Event: audit.EventFileDeleted, TokenID: id.TokenID, FileID: fileID, ClientIP: s.clientIP(r)})
	w.WriteHeader(http.StatusNoContent)
}
