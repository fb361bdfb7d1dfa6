package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"secure-transfer/internal/security"
	"secure-transfer/internal/transfer"
)

// Request headers carrying an HMAC signature.
const (
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"
)

// DefaultHMACTolerance is the allowed clock skew between client and server.
const DefaultHMACTolerance = 30 * time.Second

const hmacTokenIDLength = 16

// CanonicalPayload is the exact byte string both sides sign.
func CanonicalPayload(method, path, timestamp, nonce, bodySHA256 string) string {
	return strings.ToUpper(method) + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + strings.ToLower(bodySHA256)
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMAC verifies signed requests and consumes their nonces.
type HMAC struct {
	secret    []byte
	tolerance time.Duration
	nonces    *security.NonceStore
	now       func() time.Time
}

// NewHMAC fails without a secret or nonce store.
func NewHMAC(secret string, tolerance time.Duration, nonces *security.NonceStore) (*HMAC, error) {
	if secret == "" {
		return nil, errors.New("hmac secret is required")
	}
	if nonces == nil {
		return nil, errors.New("hmac authentication needs a nonce store")
	}
	if tolerance <= 0 {
		tolerance = DefaultHMACTolerance
	}
	return &HMAC{secret: []byte(secret), tolerance: tolerance, nonces: nonces, now: time.Now}, nil
}

// nonceTTL keeps a nonce recorded until its signed timestamp falls out of
// the tolerance window, and never less than the store default.
func (a *HMAC) nonceTTL(signedUnix int64) time.Duration {
	stale := time.Unix(signedUnix+int64(a.tolerance/time.Second)+1, 0)
	ttl := stale.Sub(a.now())
	if d := a.nonces.TTL(); d > ttl {
		ttl = d
	}
	return ttl
}

// SetClock overrides the time source (tests).
func (a *HMAC) SetClock(now func() time.Time) { a.now = now }

func (a *HMAC) Name() string { return StrategyHMAC }

// NeedsBodyDigest is true: the signature covers the body.
func (a *HMAC) NeedsBodyDigest() bool { return true }

// Authenticate checks timestamp skew and nonce shape, verifies the
// signature, and consumes the nonce last.
func (a *HMAC) Authenticate(ctx context.Context, r Request) (Identity, error) {
	ts := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)
	sig := strings.ToLower(r.Header.Get(HeaderSignature))
	if ts == "" || nonce == "" || sig == "" {
		return Identity{}, fail("missing hmac headers")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Identity{}, fail("malformed timestamp")
	}
	skew := a.now().Unix() - unix
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(a.tolerance/time.Second) {
		return Identity{}, fail("timestamp outside tolerance")
	}

	if len(nonce) < security.MinNonceLength {
		return Identity{}, fail("nonce too short")
	}

	want := Sign(a.secret, CanonicalPayload(r.Method, r.Path, ts, nonce, r.BodySHA256))
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return Identity{}, fail("invalid signature")
	}

	if err := a.nonces.Consume(ctx, nonce, a.nonceTTL(unix)); err != nil {
		switch {
		case errors.Is(err, transfer.ErrReplayDetected):
			return Identity{}, err
		case errors.Is(err, transfer.ErrInvalidInput):
			return Identity{}, fail("invalid nonce")
		default:
			return Identity{}, err
		}
	}

	return Identity{Strategy: StrategyHMAC, Subject: "hmac_client", TokenID: want[:hmacTokenIDLength]}, nil
}
