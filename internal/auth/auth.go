// auth.go - Caller authentication strategies.
//
// One Authenticator is chosen at startup from configuration and applied to
// every protected request. Each strategy turns credential material into an
// Identity whose TokenID keys rate limiting and audit records.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"secure-transfer/internal/security"
	"secure-transfer/internal/transfer"
)

// Strategy names accepted in configuration.
const (
	StrategyBearer = "bearer"
	StrategyHMAC   = "hmac"
	StrategyJWT    = "jwt"
)

// Request is the transport-neutral view of an inbound call.
type Request struct {
	Method string
	Path   string
	Header http.Header
	// BodySHA256 is the hex digest of the raw request body.
	BodySHA256 string
	ClientIP   string
}

// Identity is an authenticated caller.
type Identity struct {
	Strategy string
	Subject  string
	// TokenID is stable per credential and reveals nothing about it.
	TokenID string
}

// Authenticator verifies a request and returns the caller identity. Any
// failure wraps transfer.ErrAuthenticationFailed (or ErrReplayDetected).
type Authenticator interface {
	Name() string
	Authenticate(ctx context.Context, r Request) (Identity, error)
}

// BodyDigester is implemented by strategies whose credentials cover the
// request body. Callers only need to hash the body for those.
type BodyDigester interface {
	NeedsBodyDigest() bool
}

// NeedsBodyDigest reports whether a requires Request.BodySHA256.
func NeedsBodyDigest(a Authenticator) bool {
	d, ok := a.(BodyDigester)
	return ok && d.NeedsBodyDigest()
}

// Config holds the secret material and tuning for every strategy. Only the
// fields of the selected strategy are used.
type Config struct {
	Strategy string

	BearerToken string

	HMACSecret    string
	HMACTolerance time.Duration

	JWTSecret       string
	JWTPublicKeyPEM string
	JWTAlgorithm    string
	JWTIssuer       string
	JWTReplayGuard  bool
}

// New builds the configured strategy. nonces is required for HMAC and for
// JWT with the replay guard on.
func New(cfg Config, nonces *security.NonceStore) (Authenticator, error) {
	switch strings.ToLower(cfg.Strategy) {
	case StrategyBearer, "":
		return NewBearer(cfg.BearerToken)
	case StrategyHMAC:
		return NewHMAC(cfg.HMACSecret, cfg.HMACTolerance, nonces)
	case StrategyJWT:
		return NewJWT(JWTConfig{
			Algorithm:    cfg.JWTAlgorithm,
			Secret:       cfg.JWTSecret,
			PublicKeyPEM: cfg.JWTPublicKeyPEM,
			Issuer:       cfg.JWTIssuer,
			ReplayGuard:  cfg.JWTReplayGuard,
		}, nonces)
	default:
		return nil, fmt.Errorf("unknown auth strategy %q", cfg.Strategy)
	}
}

// BodyDigest returns the hex SHA-256 of b.
func BodyDigest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fail(reason string) error {
	return fmt.Errorf("%w: %s", transfer.ErrAuthenticationFailed, reason)
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
func bearerToken(h http.Header) (string, bool) {
	v := strings.TrimSpace(h.Get("Authorization"))
	scheme, token, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
