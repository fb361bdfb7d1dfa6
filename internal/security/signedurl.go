// signedurl.go - Stateless, time-boxed, single-use download capabilities.
//
// A capability is four query parameters: fileId, expiresAt (unix seconds),
// ipHash (hex sha256 of the client IP, empty when binding is off) and
// signature = hex HMAC-SHA256(secret, "fileId|expiresAt|ipHash"). Nothing is
// stored at issue time; the signature is recorded once it is redeemed.
package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"secure-transfer/internal/kv"
	"secure-transfer/internal/storage"
	"secure-transfer/internal/transfer"
)

const (
	DefaultSignedURLTTL    = 60 * time.Second
	DefaultSignedURLMaxTTL = 24 * time.Hour

	// SignedDownloadPath is the route that redeems capabilities.
	SignedDownloadPath = "/secure-transfer/signed-download"

	usedURLPrefix = "sft:url:"
)

// FileLookup resolves a file id to its metadata. Exists reports whether
// both the metadata and the bytes are present.
type FileLookup interface {
	Retrieve(ctx context.Context, id string) (storage.StoredFile, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// SignedURLConfig configures issuing and redeeming capabilities.
type SignedURLConfig struct {
	Secret     []byte
	BaseURL    string
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	BindIP     bool
}

// SignedURL is an issued capability.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// SignedURLParams are the raw query parameters of a capability.
type SignedURLParams struct {
	FileID    string
	ExpiresAt string
	IPHash    string
	Signature string
}

// ParseSignedURLParams reads the capability parameters from a query string.
func ParseSignedURLParams(q url.Values) SignedURLParams {
	return SignedURLParams{
		FileID:    q.Get("fileId"),
		ExpiresAt: q.Get("expiresAt"),
		IPHash:    q.Get("ipHash"),
		Signature: q.Get("signature"),
	}
}

// SignedURLs issues and redeems capabilities.
type SignedURLs struct {
	cfg   SignedURLConfig
	store kv.Store
	files FileLookup
	now   func() time.Time
}

// NewSignedURLs validates cfg and fills defaults.
func NewSignedURLs(cfg SignedURLConfig, store kv.Store, files FileLookup) (*SignedURLs, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signed url secret is required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultSignedURLTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultSignedURLMaxTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SignedURLs{cfg: cfg, store: store, files: files, now: time.Now}, nil
}

// SetClock overrides the time source (tests).
func (s *SignedURLs) SetClock(now func() time.Time) { s.now = now }

// clampTTL applies the default for unset values and caps long-lived links.
func (s *SignedURLs) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.cfg.DefaultTTL
	}
	if ttl > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}
	return ttl
}

// HashIP returns the hex sha256 of ip.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

func (s *SignedURLs) sign(fileID, expiresAt, ipHash string) string {
	mac := hmac.New(sha256.New, s.cfg.Secret)
	_, _ = mac.Write([]byte(fileID + "|" + expiresAt + "|" + ipHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate issues a capability for fileID. A zero ttl uses the default.
func (s *SignedURLs) Generate(fileID, clientIP string, ttl time.Duration) (SignedURL, error) {
	if fileID == "" {
		return SignedURL{}, fmt.Errorf("%w: empty file id", transfer.ErrInvalidInput)
	}
	ttl = s.clampTTL(ttl)
	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)

	ipHash := ""
	if s.cfg.BindIP {
		ipHash = HashIP(clientIP)
	}

	q := url.Values{}
	q.Set("fileId", fileID)
	q.Set("expiresAt", exp)
	q.Set("ipHash", ipHash)
	q.Set("signature", s.sign(fileID, exp, ipHash))

	return SignedURL{
		URL:       s.cfg.BaseURL + SignedDownloadPath + "?" + q.Encode(),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// Validate redeems a capability presented from requesterIP. Checks run in
// order: expiry, IP binding, signature, file presence, single use. A missing
// file does not consume the capability.
func (s *SignedURLs) Validate(ctx context.Context, p SignedURLParams, requesterIP string) (storage.StoredFile, error) {
	if p.FileID == "" || p.ExpiresAt == "" || p.Signature == "" {
		return storage.StoredFile{}, fmt.Errorf("%w: missing parameters", transfer.ErrSignedURLInvalid)
	}
	exp, err := strconv.ParseInt(p.ExpiresAt, 10, 64)
	if err != nil {
		return storage.StoredFile{}, fmt.Errorf("%w: malformed expiry", transfer.ErrSignedURLInvalid)
	}

	now := s.now()
	if now.After(time.Unix(exp, 0)) {
		return storage.StoredFile{}, transfer.ErrSignedURLExpired
	}

	if s.cfg.BindIP && !hmac.Equal([]byte(HashIP(requesterIP)), []byte(p.IPHash)) {
		return storage.StoredFile{}, transfer.ErrIPMismatch
	}

	want := s.sign(p.FileID, p.ExpiresAt, p.IPHash)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(p.Signature))) {
		return storage.StoredFile{}, fmt.Errorf("%w: bad signature", transfer.ErrSignedURLInvalid)
	}

	ok, err := s.files.Exists(ctx, p.FileID)
	if err != nil {
		return storage.StoredFile{}, err
	}
	if !ok {
		return storage.StoredFile{}, transfer.ErrNotFound
	}
	rec, err := s.files.Retrieve(ctx, p.FileID)
	if err != nil {
		return storage.StoredFile{}, err
	}

	ttl := time.Unix(exp, 0).Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	inserted, err := s.store.PutIfAbsent(ctx, usedURLPrefix+want, p.FileID, ttl)
	if err != nil {
		return storage.StoredFile{}, fmt.Errorf("record signed url use: %w", err)
	}
	if !inserted {
		return storage.StoredFile{}, fmt.Errorf("%w: already used", transfer.ErrSignedURLInvalid)
	}
	return rec, nil
}
