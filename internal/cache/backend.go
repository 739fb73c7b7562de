// Package cache provides a generic TTL-aware cache backend plus the
// two well-known instances: the address-lookup-table cache and the
// wallet token-account cache.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"
)

// Backend is a concurrent map with optional per-entry TTL and
// single-flighted load-or-fetch.
type Backend[V any] struct {
	ristretto *ristretto.Cache
	group     singleflight.Group
}

func NewBackend[V any]() (*Backend[V], error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Backend[V]{ristretto: rc}, nil
}

func (b *Backend[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := b.ristretto.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Insert stores value under key. ttl == 0 means no expiry.
func (b *Backend[V]) Insert(key string, value V, ttl time.Duration) {
	if ttl > 0 {
		b.ristretto.SetWithTTL(key, value, 1, ttl)
	} else {
		b.ristretto.Set(key, value, 1)
	}
	b.ristretto.Wait()
}

func (b *Backend[V]) Remove(key string) {
	b.ristretto.Del(key)
}

// LoadOrFetch de-duplicates concurrent misses: fetcher runs at most
// once per burst and every awaiter observes the same result.
func (b *Backend[V]) LoadOrFetch(ctx context.Context, key string, ttl time.Duration, fetcher func(context.Context) (V, error)) (V, error) {
	if v, ok := b.Get(key); ok {
		return v, nil
	}

	result, err, _ := b.group.Do(key, func() (interface{}, error) {
		v, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		b.Insert(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}
