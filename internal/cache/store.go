// Package cache implements the cache-aside identity cache on top of a shared key-value store.
//
// The cache is an accelerator, never a source of truth: entries are written only
// on a miss and disappear by TTL. Transport failures degrade to the loader.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the transport to the shared key-value store.
// Implementations rely on the store's single-key atomicity; no in-process locking is done.
type Store interface {
	// Get returns the value stored under key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key with the given time-to-live, replacing any previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
