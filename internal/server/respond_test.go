package server

import (
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-transfer/internal/transfer"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{transfer.ErrAuthenticationFailed, http.StatusUnauthorized},
		{fmt.Errorf("%w: invalid signature", transfer.ErrAuthenticationFailed), http.StatusUnauthorized},
		{transfer.ErrReplayDetected, http.StatusUnauthorized},
		{transfer.ErrSignedURLExpired, http.StatusUnauthorized},
		{transfer.ErrSignedURLInvalid, http.StatusUnauthorized},
		{transfer.ErrIPMismatch, http.StatusUnauthorized},
		{transfer.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{transfer.ErrFileTooLarge, http.StatusUnprocessableEntity},
		{transfer.ErrMimeNotAllowed, http.StatusUnprocessableEntity},
		{transfer.ErrInvalidFilename, http.StatusUnprocessableEntity},
		{transfer.ErrNotFound, http.StatusNotFound},
		{transfer.ErrInvalidInput, http.StatusBadRequest},
		{transfer.Storage("write bytes", fmt.Errorf("disk full")), http.StatusInternalServerError},
		{fmt.Errorf("something unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, msg := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
		assert.NotContains(t, msg, "disk full", "internal detail never reaches the body")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff        string
		realIP     string
		trustProxy bool
		want       string
	}{
		{"remote addr", "203.0.113.5:1234", "", "", false, "203.0.113.5"},
		{"forwarded ignored without trust", "10.0.0.1:1234", "198.51.100.9", "", false, "10.0.0.1"},
		{"first forwarded hop", "10.0.0.1:1234", "198.51.100.9, 10.0.0.2", "", true, "198.51.100.9"},
		{"real ip header", "10.0.0.1:1234", "", "198.51.100.10", true, "198.51.100.10"},
		{"ipv6", "[2001:db8::1]:443", "", "", false, "2001:db8::1"},
		{"no port", "203.0.113.5", "", "", false, "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, clientIP(r, tt.trustProxy))
		})
	}
}

func TestContentDisposition(t *testing.T) {
	for _, name := range []string{"report.pdf", "my report.pdf", "résumé.pdf", `quote"d.png`} {
		v := contentDisposition(name)
		disp, params, err := mime.ParseMediaType(v)
		require.NoError(t, err, v)
		assert.Equal(t, "attachment", disp)
		assert.Equal(t, name, params["filename"], v)
	}
}

func TestRawFilenameKeepsDirectories(t *testing.T) {
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="../../etc/passwd"`)
	part := &multipart.Part{Header: hdr}

	assert.Equal(t, "../../etc/passwd", rawFilename(part))
	assert.Equal(t, "passwd", part.FileName(), "the standard accessor hides the traversal")
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Unix(1000, 0)
	assert.Equal(t, 1, retryAfterSeconds(now, now))
	assert.Equal(t, 1, retryAfterSeconds(now.Add(-time.Second), now))
	assert.Equal(t, 2, retryAfterSeconds(now.Add(1500*time.Millisecond), now))
	assert.Equal(t, 60, retryAfterSeconds(now.Add(time.Minute), now))
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		query   string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"?ttl=60", time.Minute, false},
		{"?ttl=0", 0, false},
		{"?ttl=-5", 0, true},
		{"?ttl=1h", 0, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/secure-transfer/request-url/x"+tt.query, nil)
		got, err := parseTTL(r)
		if tt.wantErr {
			assert.ErrorIs(t, err, transfer.ErrInvalidInput, tt.query)
			continue
		}
		require.NoError(t, err, tt.query)
		assert.Equal(t, tt.want, got, tt.query)
	}
}
