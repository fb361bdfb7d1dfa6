package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"secure-transfer/internal/security"
	"secure-transfer/internal/transfer"
)

const (
	DefaultJWTAlgorithm = "HS256"
	DefaultJWTIssuer    = "file-transfer-client"
)

// JWTConfig configures token verification.
type JWTConfig struct {
	// Algorithm is pinned: tokens declaring anything else are refused
	// before any signature check.
	Algorithm    string
	Secret       string
	PublicKeyPEM string
	Issuer       string
	ReplayGuard  bool
}

// JWT verifies signed bearer tokens.
type JWT struct {
	alg    string
	key    any
	issuer string
	guard  bool
	nonces *security.NonceStore
	now    func() time.Time
}

// NewJWT resolves the verification key for the pinned algorithm.
func NewJWT(cfg JWTConfig, nonces *security.NonceStore) (*JWT, error) {
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = DefaultJWTAlgorithm
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultJWTIssuer
	}

	var key any
	var err error
	switch {
	case strings.HasPrefix(alg, "HS"):
		if cfg.Secret == "" {
			return nil, errors.New("jwt secret is required for " + alg)
		}
		key = []byte(cfg.Secret)
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		key, err = jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
	case strings.HasPrefix(alg, "ES"):
		key, err = jwt.ParseECPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("jwt public key: %w", err)
	}
	if jwt.GetSigningMethod(alg) == nil {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
	if cfg.ReplayGuard && nonces == nil {
		return nil, errors.New("jwt replay guard needs a nonce store")
	}

	return &JWT{alg: alg, key: key, issuer: issuer, guard: cfg.ReplayGuard, nonces: nonces, now: time.Now}, nil
}

// SetClock overrides the time source (tests).
func (a *JWT) SetClock(now func() time.Time) { a.now = now }

func (a *JWT) Name() string { return StrategyJWT }

func (a *JWT) Authenticate(ctx context.Context, r Request) (Identity, error) {
	raw, ok := bearerToken(r.Header)
	if !ok {
		return Identity{}, fail("missing bearer token")
	}

	// Refuse alg confusion before the verifier sees the token.
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, &jwt.RegisteredClaims{})
	if err != nil {
		return Identity{}, fail("malformed token")
	}
	if alg, _ := unverified.Header["alg"].(string); alg != a.alg {
		return Identity{}, fail("unexpected signing algorithm")
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{a.alg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fail("invalid token")
	}
	if claims.ID == "" {
		return Identity{}, fail("missing jti")
	}

	if a.guard {
		ttl := claims.ExpiresAt.Sub(a.now())
		sum := sha256.Sum256([]byte(claims.ID))
		if err := a.nonces.Consume(ctx, "jti-"+hex.EncodeToString(sum[:]), ttl); err != nil {
			if errors.Is(err, transfer.ErrReplayDetected) {
				return Identity{}, err
			}
			return Identity{}, fmt.Errorf("jti record: %w", err)
		}
	}

	subject := claims.Subject
	if subject == "" {
		subject = "jwt_client"
	}
	return Identity{Strategy: StrategyJWT, Subject: subject, TokenID: claims.ID}, nil
}
