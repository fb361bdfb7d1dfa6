// ratelimit.go - Fixed-window request limits per authenticated token.
//
// Counters are keyed by token id and window index, so a new window starts
// from zero without any reset step. A client can spend up to 2x the limit
// across a window boundary; that burst is accepted.
package security

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"secure-transfer/internal/kv"
	"secure-transfer/internal/transfer"
)

const (
	DefaultRateLimit  = 60
	DefaultRateWindow = time.Minute

	ratePrefix = "sft:rate:"
)

// Quota describes the caller's budget after a hit.
type Quota struct {
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// RateLimiter counts hits per token in a shared store.
type RateLimiter struct {
	store  kv.Store
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows max hits per window. Zero values use the defaults.
func NewRateLimiter(store kv.Store, max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{store: store, max: int64(max), window: window, now: time.Now}
}

// SetClock overrides the time source (tests).
func (l *RateLimiter) SetClock(now func() time.Time) { l.now = now }

// current returns the counter key and the end of the current window.
func (l *RateLimiter) current(tokenID string) (string, time.Time) {
	now := l.now()
	idx := now.UnixNano() / int64(l.window)
	end := time.Unix(0, (idx+1)*int64(l.window))
	return ratePrefix + tokenID + ":" + strconv.FormatInt(idx, 10), end
}

// Hit counts one request for tokenID. It fails with ErrRateLimitExceeded
// when the window is already full; a rejected hit does not consume budget.
func (l *RateLimiter) Hit(ctx context.Context, tokenID string) (Quota, error) {
	key, end := l.current(tokenID)
	ttl := end.Sub(l.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	count, ok, err := l.store.IncrementCapped(ctx, key, l.max, ttl)
	if err != nil {
		return Quota{}, fmt.Errorf("rate counter: %w", err)
	}
	q := Quota{Limit: l.max, Remaining: l.max - count, Reset: end}
	if q.Remaining < 0 {
		q.Remaining = 0
	}
	if !ok {
		return q, transfer.ErrRateLimitExceeded
	}
	return q, nil
}

// Remaining reports the budget left for tokenID without counting a hit.
func (l *RateLimiter) Remaining(ctx context.Context, tokenID string) (int64, error) {
	key, _ := l.current(tokenID)
	v, found, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("rate counter: %w", err)
	}
	if !found {
		return l.max, nil
	}
	used, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rate counter: %w", err)
	}
	if used >= l.max {
		return 0, nil
	}
	return l.max - used, nil
}
