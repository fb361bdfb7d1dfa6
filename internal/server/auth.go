// auth.go - Authentication middleware for the protected transfer routes.
//
// For strategies that sign the body, the raw body is spooled to a temporary
// file while its SHA-256 is taken, so signatures can cover large uploads
// without holding them in memory. Handlers downstream read the spooled copy.
// Other strategies authenticate on headers alone and the body is not touched
// until the caller is known.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/auth"
	"secure-transfer/internal/logging"
	"secure-transfer/internal/transfer"
)

const identityKey ctxKey = "identity"

// bodyOverhead is the multipart framing allowed on top of the upload limit.
const bodyOverhead = 1 << 20

var emptyBodyDigest = auth.BodyDigest(nil)

// IdentityFromContext returns the authenticated caller.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// authenticate verifies the caller and stores the identity in the request
// context. The response never says why authentication failed.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "auth.authenticate")
		defer span.End()

		digest := ""
		if auth.NeedsBodyDigest(s.deps.Auth) {
			sum, cleanup, err := s.spoolRequestBody(w, r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			defer cleanup()
			digest = sum
		} else if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
		}

		ip := s.clientIP(r)
		id, err := s.deps.Auth.Authenticate(ctx, auth.Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Header:     r.Header,
			BodySHA256: digest,
			ClientIP:   ip,
		})
		if err != nil {
			event := audit.EventAuthFailed
			if errors.Is(err, transfer.ErrReplayDetected) {
				event = audit.EventReplayDetected
			}
			s.metrics.RecordAuthFailure(s.deps.Auth.Name())
			s.recordEvent(r, audit.Entry{Event: event, ClientIP: ip, Error: err.Error()})
			logging.Debug("authentication rejected", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"strategy":   s.deps.Auth.Name(),
				"reason":     err.Error(),
			})
			writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// spoolRequestBody replaces r.Body with a spooled copy and returns its
// digest. The cleanup func removes the temporary file.
func (s *Server) spoolRequestBody(w http.ResponseWriter, r *http.Request) (string, func(), error) {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return emptyBodyDigest, func() {}, nil
	}
	spool, sum, err := spoolBody(http.MaxBytesReader(w, r.Body, s.maxBodyBytes()))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, fmt.Errorf("%w: request body exceeds %d bytes", transfer.ErrFileTooLarge, mbe.Limit)
		}
		return "", nil, fmt.Errorf("%w: could not read request body", transfer.ErrInvalidInput)
	}
	r.Body = spool
	return sum, func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}, nil
}

func (s *Server) maxBodyBytes() int64 {
	return s.deps.Validator.MaxSize() + bodyOverhead
}

// spoolBody copies body into a temporary file, returning the file rewound to
// the start and the hex SHA-256 of its content.
func spoolBody(body io.Reader) (*os.File, string, error) {
	f, err := os.CreateTemp("", "sft-body-*")
	if err != nil {
		return nil, "", err
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, "", err
	}
	return f, hex.EncodeToString(h.Sum(nil)), nil
}
