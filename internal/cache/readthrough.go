package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ReadThrough returns the value cached under key, calling load on a miss and
// writing its result back with ttl. Values are stored as JSON.
//
// If the store fails, load is still called but the result is not cached for
// this call. Errors from load are returned unchanged and never cached.
// Concurrent misses for the same key may each call load.
func ReadThrough[T any](ctx context.Context, store Store, space, key string, ttl time.Duration, log *zap.Logger, load func(context.Context) (T, error)) (T, error) {
	degraded := false

	raw, err := store.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal(raw, &v)
		if uerr == nil {
			lookupsTotal.WithLabelValues(space, resultHit).Inc()
			return v, nil
		}
		// treated as a miss; the reload overwrites it
		log.Warn("cache entry undecodable", zap.String("space", space), zap.Error(uerr))
		lookupsTotal.WithLabelValues(space, resultMiss).Inc()
	case errors.Is(err, ErrMiss):
		lookupsTotal.WithLabelValues(space, resultMiss).Inc()
	default:
		degraded = true
		lookupsTotal.WithLabelValues(space, resultError).Inc()
		log.Warn("cache unavailable, falling through", zap.String("space", space), zap.Error(err))
	}

	v, err := load(ctx)
	if err != nil || degraded {
		return v, err
	}

	raw, err = json.Marshal(v)
	if err != nil {
		log.Warn("cache encode failed", zap.String("space", space), zap.Error(err))
		return v, nil
	}
	if err := store.Set(ctx, key, raw, ttl); err != nil {
		lookupsTotal.WithLabelValues(space, resultSetError).Inc()
		log.Warn("cache write failed", zap.String("space", space), zap.Error(err))
	}
	return v, nil
}
