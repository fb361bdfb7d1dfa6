package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// Bearer checks a single shared token.
type Bearer struct {
	digest  [32]byte
	tokenID string
}

// NewBearer fails when token is empty.
func NewBearer(token string) (*Bearer, error) {
	if token == "" {
		return nil, errors.New("bearer token is required")
	}
	d := sha256.Sum256([]byte(token))
	return &Bearer{digest: d, tokenID: hex.EncodeToString(d[:])}, nil
}

func (b *Bearer) Name() string { return StrategyBearer }

func (b *Bearer) Authenticate(_ context.Context, r Request) (Identity, error) {
	token, ok := bearerToken(r.Header)
	if !ok {
		return Identity{}, fail("missing bearer token")
	}
	// Compare digests, not raw tokens.
	got := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(got[:], b.digest[:]) != 1 {
		return Identity{}, fail("invalid bearer token")
	}
	return Identity{Strategy: StrategyBearer, Subject: "bearer_client", TokenID: b.tokenID}, nil
}
