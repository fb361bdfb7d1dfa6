package client

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"secure-transfer/internal/auth"
)

// Credentials authenticate one outgoing request. bodySHA256 is the hex
// digest of the exact body bytes that will be sent.
type Credentials interface {
	Sign(req *http.Request, bodySHA256 string) error
}

// BearerCredentials send a static shared token.
type BearerCredentials struct {
	Token string
}

func (c BearerCredentials) Sign(req *http.Request, _ string) error {
	if c.Token == "" {
		return errors.New("bearer token is empty")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	return nil
}

// HMACCredentials sign method, path, time, a fresh nonce and the body digest.
type HMACCredentials struct {
	Secret string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c HMACCredentials) Sign(req *http.Request, bodySHA256 string) error {
	if c.Secret == "" {
		return errors.New("hmac secret is empty")
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	nonce := hex.EncodeToString(b)
	ts := strconv.FormatInt(now().Unix(), 10)

	payload := auth.CanonicalPayload(req.Method, req.URL.Path, ts, nonce, bodySHA256)
	req.Header.Set(auth.HeaderTimestamp, ts)
	req.Header.Set(auth.HeaderNonce, nonce)
	req.Header.Set(auth.HeaderSignature, auth.Sign([]byte(c.Secret), payload))
	return nil
}

// JWTCredentials mint a short-lived token with a unique jti per request.
type JWTCredentials struct {
	// Key is a []byte secret for HS* or a private key for RS*/PS*/ES*.
	Key     any
	Method  jwt.SigningMethod
	Issuer  string
	Subject string
	// TTL defaults to one minute.
	TTL time.Duration
	Now func() time.Time
}

func (c JWTCredentials) Sign(req *http.Request, _ string) error {
	if c.Key == nil {
		return errors.New("jwt signing key is empty")
	}
	method := c.Method
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	t := now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.Issuer,
		Subject:   c.Subject,
		IssuedAt:  jwt.NewNumericDate(t),
		ExpiresAt: jwt.NewNumericDate(t.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(c.Key)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
