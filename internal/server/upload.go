// upload.go - Multipart upload handler: receive, validate, hash, store.
package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/render"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/storage"
	"secure-transfer/internal/transfer"
)

// uploadFormField is the multipart field carrying the file.
const uploadFormField = "file"

type uploadResponse struct {
	Status       string    `json:"status"`
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	MIME         string    `json:"mime"`
	Hash         string    `json:"hash"`
	StoredAt     time.Time `json:"stored_at"`
	OwnerID      string    `json:"owner_id"`
}

// receivedFile is an uploaded part spooled to disk.
type receivedFile struct {
	file         *os.File
	filename     string
	declaredType string
	size         int64
}

func (f *receivedFile) cleanup() {
	_ = f.file.Close()
	_ = os.Remove(f.file.Name())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "transfer.upload")
	defer span.End()

	start := time.Now()
	id, _ := IdentityFromContext(ctx)
	ip := s.clientIP(r)

	fail := func(err error) {
		s.metrics.RecordUploadError()
		s.recordEvent(r, audit.Entry{Event: audit.EventUploadFailed, TokenID: id.TokenID, ClientIP: ip, Error: err.Error()})
		writeError(w, r, err)
	}

	in, err := s.receiveFile(r)
	if err != nil {
		fail(err)
		return
	}
	defer in.cleanup()

	mimeType, err := s.deps.Validator.Validate(storage.Upload{
		Filename:     in.filename,
		DeclaredType: in.declaredType,
		Size:         in.size,
		Content:      in.file,
	})
	if err != nil {
		fail(err)
		return
	}

	hash, err := storage.ComputeHash(in.file)
	if err != nil {
		fail(transfer.Storage("hash upload", err))
		return
	}

	rec, err := s.deps.Files.Store(ctx, in.file, storage.StoreInput{
		OriginalName: in.filename,
		MIME:         mimeType,
		Size:         in.size,
		Hash:         hash,
		OwnerID:      id.Subject,
	})
	if err != nil {
		fail(err)
		return
	}

	s.metrics.RecordUpload(rec.Size, time.Since(start))
	s.recordEvent(r, audit.Entry{
		Event:    audit.EventUploadSuccess,
		TokenID:  id.TokenID,
		FileID:   rec.ID,
		ClientIP: ip,
		Hash:     rec.Hash,
		Size:     rec.Size,
	})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, uploadResponse{
		Status:       "success",
		FileID:       rec.ID,
		OriginalName: rec.OriginalName,
		Size:         rec.Size,
		MIME:         rec.MIME,
		Hash:         rec.Hash,
		StoredAt:     rec.UploadedAt,
		OwnerID:      rec.OwnerID,
	})
}

// receiveFile streams the multipart body and spools the "file" part to a
// temporary file. At most one byte past the size limit is read so oversize
// uploads are detected without consuming them in full.
func (s *Server) receiveFile(r *http.Request) (*receivedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart/form-data", transfer.ErrInvalidInput)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no file provided", transfer.ErrInvalidInput)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed multipart body", transfer.ErrInvalidInput)
		}
		if part.FormName() != uploadFormField {
			_ = part.Close()
			continue
		}

		rf, err := s.spoolPart(part)
		_ = part.Close()
		return rf, err
	}
}

func (s *Server) spoolPart(part *multipart.Part) (*receivedFile, error) {
	f, err := os.CreateTemp("", "sft-upload-*")
	if err != nil {
		return nil, transfer.Storage("create spool file", err)
	}
	rf := &receivedFile{
		file:         f,
		filename:     rawFilename(part),
		declaredType: part.Header.Get("Content-Type"),
	}

	n, err := io.Copy(f, io.LimitReader(part, s.deps.Validator.MaxSize()+1))
	if err != nil {
		rf.cleanup()
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", transfer.ErrFileTooLarge, mbe.Limit)
		}
		return nil, fmt.Errorf("%w: could not read file part", transfer.ErrInvalidInput)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		rf.cleanup()
		return nil, transfer.Storage("rewind spool file", err)
	}
	rf.size = n
	return rf, nil
}

// rawFilename returns the filename exactly as the client sent it.
// multipart.Part.FileName strips directory components, which would hide
// traversal attempts from the filename policy.
func rawFilename(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return params["filename"]
}
