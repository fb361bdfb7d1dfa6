// kv.go - Key/value store contract shared by the nonce, rate and signed-URL
// components.
//
// Every mutation that guards a security decision is a single atomic
// primitive (insert-if-absent, capped increment) so concurrent workers
// sharing one backing store cannot both pass the same check.
package kv

import (
	"context"
	"time"
)

// Store is a TTL-aware key/value store.
type Store interface {
	// Get returns the value stored at key; found is false when the key is
	// missing or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// PutIfAbsent stores value only when key is missing or expired and
	// reports whether it did.
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (inserted bool, err error)

	// IncrementCapped increments the counter at key unless doing so would
	// exceed max. The TTL is applied when the counter is created. It returns
	// the counter value after the call and whether the increment happened.
	IncrementCapped(ctx context.Context, key string, max int64, ttl time.Duration) (count int64, ok bool, err error)

	Ping(ctx context.Context) error
	Close() error
}
