// links.go - Signed URL issuing and redemption.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/security"
	"secure-transfer/internal/transfer"
)

type signedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// parseTTL reads the optional ttl query parameter in seconds. Zero means the
// configured default.
func parseTTL(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("ttl")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: ttl must be a non-negative number of seconds", transfer.ErrInvalidInput)
	}
	return time.Duration(n) * time.Second, nil
}

func (s *Server) handleRequestURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "transfer.request_url")
	defer span.End()

	id, _ := IdentityFromContext(ctx)
	fileID := chi.URLParam(r, "id")
	ip := s.clientIP(r)

	ttl, err := parseTTL(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ok, err := s.deps.Files.Exists(ctx, fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, transfer.ErrNotFound)
		return
	}

	signed, err := s.deps.SignedURLs.Generate(fileID, ip, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.metrics.RecordSignedURL("created")
	s.recordEvent(r, audit.Entry{Event: audit.EventSignedURLCreated, TokenID: id.TokenID, FileID: fileID, ClientIP: ip})
	render.JSON(w, r, signedURLResponse{URL: signed.URL, ExpiresAt: signed.ExpiresAt})
}

// handleSignedDownload redeems a capability. It is the one transfer route
// without caller authentication; the capability is the credential.
func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "transfer.signed_download")
	defer span.End()

	start := time.Now()
	ip := s.clientIP(r)
	params := security.ParseSignedURLParams(r.URL.Query())

	rec, err := s.deps.SignedURLs.Validate(ctx, params, ip)
	if err != nil {
		event := audit.EventDownloadFailed
		outcome := "rejected"
		if errors.Is(err, transfer.ErrSignedURLExpired) {
			event = audit.EventSignedURLExpired
			outcome = "expired"
		}
		s.metrics.RecordSignedURL(outcome)
		s.recordEvent(r, audit.Entry{Event: event, FileID: params.FileID, ClientIP: ip, Error: err.Error()})
		writeError(w, r, err)
		return
	}

	_, rc, err := s.deps.Files.Open(ctx, rec.ID)
	if err != nil {
		s.metrics.RecordDownloadError()
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	s.metrics.RecordSignedURL("used")
	s.recordEvent(r, audit.Entry{Event: audit.EventSignedURLUsed, FileID: rec.ID, ClientIP: ip, Hash: rec.Hash, Size: rec.Size})
	s.streamFile(w, r, rec, rc)
	s.metrics.RecordDownload(rec.Size, time.Since(start))
}
