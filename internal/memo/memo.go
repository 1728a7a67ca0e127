// Package memo memoizes expensive calls in the cache store under namespaced
// keys, keeping TTL policy and key formatting in one place.
package memo

import (
	"context"
	"time"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/logging"
)

// Category is the first segment of a cache key.
type Category string

// Known categories.
const (
	CategoryProjects  Category = "projects"
	CategoryInstances Category = "instances"
)

// Key identifies a memoized value: "<category>" or "<category>/<discriminator>".
type Key struct {
	Category      Category
	Discriminator string
}

// String returns the raw cache key.
func (k Key) String() string {
	if k.Discriminator == "" {
		return string(k.Category)
	}
	return string(k.Category) + "/" + k.Discriminator
}

// ProjectsKey is the key of the project list.
func ProjectsKey() Key {
	return Key{Category: CategoryProjects}
}

// InstancesKey is the key of one project's instance list.
func InstancesKey(projectID string) Key {
	return Key{Category: CategoryInstances, Discriminator: projectID}
}

// Fetcher holds the TTL policy for memoized values.
type Fetcher struct {
	defaultTTL time.Duration
	ttls       map[Category]time.Duration
}

// NewFetcher returns a Fetcher whose categories default to defaultTTL.
// A non-positive defaultTTL selects cache.DefaultTTL.
func NewFetcher(defaultTTL time.Duration) *Fetcher {
	if defaultTTL <= 0 {
		defaultTTL = cache.DefaultTTL
	}
	return &Fetcher{
		defaultTTL: defaultTTL,
		ttls:       make(map[Category]time.Duration),
	}
}

// WithTTL overrides the TTL of one category.
func (f *Fetcher) WithTTL(c Category, ttl time.Duration) *Fetcher {
	f.ttls[c] = ttl
	return f
}

// TTL returns the TTL applied to keys of category c.
func (f *Fetcher) TTL(c Category) time.Duration {
	if ttl, ok := f.ttls[c]; ok {
		return ttl
	}
	return f.defaultTTL
}

// Fetch returns the live cached value for key, or runs producer and caches
// its result. With refresh set the cached value is ignored and overwritten.
// Producer failures are never cached.
func Fetch[T any](
	ctx context.Context,
	tx *cache.Tx,
	f *Fetcher,
	key Key,
	refresh bool,
	producer func(ctx context.Context) (T, error),
) (T, error) {
	log := logging.FromContext(ctx)
	ttl := f.TTL(key.Category)

	if refresh {
		log.Debug().
			Str("component", "memo").
			Str("key", key.String()).
			Msg("refreshing cache entry")
		v, err := producer(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return cache.Set(tx, key.String(), v, ttl)
	}

	miss := false
	v, err := cache.GetOrSet(tx, key.String(), ttl, func() (T, error) {
		miss = true
		return producer(ctx)
	})
	if err != nil {
		return v, err
	}

	log.Debug().
		Str("component", "memo").
		Str("key", key.String()).
		Bool("hit", !miss).
		Msg("memoized fetch")
	return v, nil
}

// Recall returns the live cached value for key without producing one.
func Recall[T any](tx *cache.Tx, key Key) (T, bool, error) {
	return cache.Get[T](tx, key.String())
}
