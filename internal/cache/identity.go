package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/contacts-keeper/internal/model"
)

const identitySpace = "identity"

// IdentityKey returns the store key for an account email.
func IdentityKey(email string) string { return "user:" + email }

// IdentityCache maps an email to a serialized identity snapshot with a bounded TTL.
type IdentityCache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewIdentityCache constructs an identity cache over store.
func NewIdentityCache(store Store, ttl time.Duration, log *zap.Logger) *IdentityCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityCache{store: store, ttl: ttl, log: log}
}

// Resolve returns the cached identity for email, loading and caching it on a miss.
func (c *IdentityCache) Resolve(ctx context.Context, email string, load func(context.Context) (model.Identity, error)) (model.Identity, error) {
	return ReadThrough(ctx, c.store, identitySpace, IdentityKey(email), c.ttl, c.log, load)
}
