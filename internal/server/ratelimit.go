// ratelimit.go - Per-credential fixed-window limiting for authenticated routes.
//
// Counting happens in the shared key/value store, so every worker behind the
// same store enforces one budget per token id.
package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/transfer"
)

// rateLimit must run after authenticate. A nil limiter disables it.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, transfer.ErrAuthenticationFailed)
			return
		}

		q, err := s.deps.Limiter.Hit(r.Context(), id.TokenID)
		if err != nil && !errors.Is(err, transfer.ErrRateLimitExceeded) {
			writeError(w, r, err)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(q.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(q.Remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(q.Reset.Unix(), 10))

		if err != nil {
			h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(q.Reset, time.Now())))
			s.metrics.RecordRateLimited()
			s.recordEvent(r, audit.Entry{Event: audit.EventRateLimitHit, TokenID: id.TokenID, ClientIP: s.clientIP(r)})
			writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds the wait up so clients never retry early.
func retryAfterSeconds(reset, now time.Time) int {
	secs := int(math.Ceil(reset.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
