// Package cache provides the key-value collaborator used for revocation
// records: string values under string keys, each with its own expiry.
//
// The production implementation is Redis. Every operation is bounded by
// a per-call timeout so that an unreachable cache surfaces as an error
// instead of stalling the request path.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key does not exist or has
	// expired.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps transport-level failures talking to the
	// backing store.
	ErrUnavailable = errors.New("cache unavailable")
)

// KV is the minimal store surface the auth service depends on.
type KV interface {
	// Get returns the value under key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)
	// SetTTL writes value under key with the given time-to-live,
	// overwriting any previous value and restarting its expiry.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
}
