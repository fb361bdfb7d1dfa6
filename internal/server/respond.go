// respond.go - Error to HTTP status mapping and JSON error bodies.
package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"secure-transfer/internal/logging"
	"secure-transfer/internal/transfer"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error from the core to an HTTP status and a stable,
// secret-free message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, transfer.ErrReplayDetected):
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, transfer.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, transfer.ErrSignedURLExpired):
		return http.StatusUnauthorized, "signed url expired"
	case errors.Is(err, transfer.ErrIPMismatch):
		return http.StatusUnauthorized, "signed url not valid for this address"
	case errors.Is(err, transfer.ErrSignedURLInvalid):
		return http.StatusUnauthorized, "signed url invalid"
	case errors.Is(err, transfer.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate limit exceeded"
	case errors.Is(err, transfer.ErrFileTooLarge):
		return http.StatusUnprocessableEntity, "file too large"
	case errors.Is(err, transfer.ErrMimeNotAllowed):
		return http.StatusUnprocessableEntity, "file type not allowed"
	case errors.Is(err, transfer.ErrInvalidFilename):
		return http.StatusUnprocessableEntity, "invalid filename"
	case errors.Is(err, transfer.ErrFileValidation):
		return http.StatusUnprocessableEntity, "file validation failed"
	case errors.Is(err, transfer.ErrNotFound):
		return http.StatusNotFound, "file not found"
	case errors.Is(err, transfer.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError renders err as {"error": "..."}. Internal errors are logged
// with the request id; their detail never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error("request failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}, err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}
