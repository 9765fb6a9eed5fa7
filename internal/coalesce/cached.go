package coalesce

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"SignalGuard/pkg/cache"
	"SignalGuard/pkg/logger"
)

// CachedFetcher serves from a cache.Store and routes misses through a Coalescer, so a cold key
// hit by many callers costs one upstream call and one cache write.
type CachedFetcher[T any] struct {
	store     cache.Store
	coalescer *Coalescer[T]
	ttl       time.Duration
	log       *logger.Logger
}

func NewCachedFetcher[T any](store cache.Store, coalescer *Coalescer[T], ttl time.Duration, log *logger.Logger) *CachedFetcher[T] {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedFetcher[T]{store: store, coalescer: coalescer, ttl: ttl, log: log}
}

// Get returns the cached value for key or fetches it. Cache faults are logged and bypassed;
// only the fetch's own error reaches the caller.
func (f *CachedFetcher[T]) Get(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	if v, ok := f.lookup(ctx, key); ok {
		return v, nil
	}

	return f.coalescer.GetOrFetch(ctx, key, func(fctx context.Context) (T, error) {
		// another leader may have filled the cache between our miss and this call
		if v, ok := f.lookup(fctx, key); ok {
			return v, nil
		}
		v, err := fetch(fctx)
		if err != nil {
			return v, err
		}
		if b, merr := json.Marshal(v); merr != nil {
			f.log.Warn("cached fetch encode failed", logger.String("key", key), logger.Error(merr))
		} else if serr := f.store.Set(fctx, key, b, f.ttl); serr != nil {
			f.log.Warn("cached fetch store failed", logger.String("key", key), logger.Error(serr))
		}
		return v, nil
	})
}

// Invalidate removes key from the cache. A fetch already in flight for key is left alone;
// callers arriving before it resolves still join it.
func (f *CachedFetcher[T]) Invalidate(ctx context.Context, key string) error {
	return f.store.Delete(ctx, key)
}

func (f *CachedFetcher[T]) lookup(ctx context.Context, key string) (T, bool) {
	var v T
	b, err := f.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.log.Warn("cached fetch lookup failed", logger.String("key", key), logger.Error(err))
		}
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		f.log.Warn("cached fetch decode failed", logger.String("key", key), logger.Error(err))
		return v, false
	}
	return v, true
}
