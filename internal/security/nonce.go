// nonce.go - Single-use nonce bookkeeping for replay protection.
package security

import (
	"context"
	"fmt"
	"time"

	"secure-transfer/internal/kv"
	"secure-transfer/internal/transfer"
)

const (
	// MinNonceLength is the shortest nonce accepted.
	MinNonceLength = 16
	maxNonceLength = 256

	// DefaultNonceTTL bounds how long a nonce is remembered.
	DefaultNonceTTL = 60 * time.Second

	noncePrefix = "sft:nonce:"
)

// NonceStore records nonces in a shared key/value store.
type NonceStore struct {
	store kv.Store
	ttl   time.Duration
}

// NewNonceStore uses ttl as the default lifetime (DefaultNonceTTL when zero).
func NewNonceStore(store kv.Store, ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceStore{store: store, ttl: ttl}
}

// TTL returns the default nonce lifetime.
func (n *NonceStore) TTL() time.Duration { return n.ttl }

func checkNonce(nonce string) error {
	if len(nonce) < MinNonceLength {
		return fmt.Errorf("%w: nonce shorter than %d characters", transfer.ErrInvalidInput, MinNonceLength)
	}
	if len(nonce) > maxNonceLength {
		return fmt.Errorf("%w: nonce longer than %d characters", transfer.ErrInvalidInput, maxNonceLength)
	}
	return nil
}

// Validate fails with ErrInvalidInput for a malformed nonce and
// ErrReplayDetected for one already recorded.
func (n *NonceStore) Validate(ctx context.Context, nonce string) error {
	if err := checkNonce(nonce); err != nil {
		return err
	}
	_, found, err := n.store.Get(ctx, noncePrefix+nonce)
	if err != nil {
		return fmt.Errorf("nonce lookup: %w", err)
	}
	if found {
		return transfer.ErrReplayDetected
	}
	return nil
}

// Record remembers nonce for ttl (the default when ttl is zero).
func (n *NonceStore) Record(ctx context.Context, nonce string, ttl time.Duration) error {
	if err := checkNonce(nonce); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = n.ttl
	}
	return n.store.Put(ctx, noncePrefix+nonce, "1", ttl)
}

// Consume validates and records nonce in one atomic step, so two concurrent
// requests carrying the same nonce cannot both succeed.
func (n *NonceStore) Consume(ctx context.Context, nonce string, ttl time.Duration) error {
	if err := checkNonce(nonce); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = n.ttl
	}
	inserted, err := n.store.PutIfAbsent(ctx, noncePrefix+nonce, "1", ttl)
	if err != nil {
		return fmt.Errorf("nonce record: %w", err)
	}
	if !inserted {
		return transfer.ErrReplayDetected
	}
	return nil
}
