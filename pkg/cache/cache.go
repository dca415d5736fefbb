// Package cache provides a generic, thread-safe LRU cache with optional entry expiry.
package cache

import (
	"time"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

// Cache is a keyed store of values of type V.
type Cache[V any] interface {
	// Get returns the value and true if present and unexpired.
	Get(key string) (V, bool)
	// Set stores a value. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)
	// Delete removes an entry. Returns true if it existed.
	Delete(key string) bool
	// Clear removes all entries.
	Clear()
	// Size returns the number of stored entries, expired or not.
	Size() int
	// Keys returns keys from most to least recently used.
	Keys() []string
}

// EvictCallback is called when an entry leaves the cache by eviction or expiry.
type EvictCallback[V any] func(key string, value V)

// Option configures a cache
type Option[V any] func(*options[V])

type options[V any] struct {
	ttl        time.Duration
	evictFn    EvictCallback[V]
	metricsReg *metric.MetricsRegistry
	name       string
	now        func() time.Time
}

// WithTTL expires entries ttl after they were last set.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(o *options[V]) {
		o.ttl = ttl
	}
}

// WithEvictionCallback sets a callback invoked outside the cache lock.
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(o *options[V]) {
		o.evictFn = fn
	}
}

// WithMetrics exports hit, miss and eviction counts labelled with name.
func WithMetrics[V any](registry *metric.MetricsRegistry, name string) Option[V] {
	return func(o *options[V]) {
		if registry != nil && name != "" {
			o.metricsReg = registry
			o.name = name
		}
	}
}

func withClock[V any](now func() time.Time) Option[V] {
	return func(o *options[V]) {
		o.now = now
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
