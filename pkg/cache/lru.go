package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

type lruEntry[V any] struct {
	key     string
	value   V
	expires time.Time
}

// LRU evicts the least recently used entry once maxSize is exceeded.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	items   map[string]*list.Element
	order   *list.List
	evictFn EvictCallback[V]
	lookups *prometheus.CounterVec
}

var _ Cache[int] = (*LRU[int])(nil)

// NewLRU creates an LRU cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, opts ...Option[V]) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU", "maxSize must be positive")
	}

	o := &options[V]{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	c := &LRU[V]{
		maxSize: maxSize,
		ttl:     o.ttl,
		now:     o.now,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		evictFn: o.evictFn,
	}

	if o.metricsReg != nil {
		c.lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "operations_total",
			ConstLabels: prometheus.Labels{"cache": o.name},
			Help:        "Cache operations by result (hit, miss, eviction, expiry)",
		}, []string{"result"})
		if err := o.metricsReg.RegisterCounterVec("cache_"+o.name, "operations_total", c.lookups); err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewLRU", "metrics registration")
		}
	}
	return c, nil
}

func (c *LRU[V]) record(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	element, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		c.record("miss")
		return zero, false
	}

	entry := element.Value.(*lruEntry[V])
	if c.expired(entry) {
		c.remove(element)
		c.mu.Unlock()
		c.record("expiry")
		c.notify(entry)
		return zero, false
	}

	c.order.MoveToFront(element)
	value := entry.value
	c.mu.Unlock()

	c.record("hit")
	return value, true
}

// Set stores value under key, evicting the oldest entry if full.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	if element, ok := c.items[key]; ok {
		entry := element.Value.(*lruEntry[V])
		entry.value = value
		entry.expires = c.expiry()
		c.order.MoveToFront(element)
		c.mu.Unlock()
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value, expires: c.expiry()})

	var evicted *lruEntry[V]
	if len(c.items) > c.maxSize {
		if back := c.order.Back(); back != nil {
			evicted = back.Value.(*lruEntry[V])
			c.remove(back)
		}
	}
	c.mu.Unlock()

	if evicted != nil {
		c.record("eviction")
		c.notify(evicted)
	}
	return true, nil
}

// Delete removes key. The eviction callback is not invoked.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(element)
	return true
}

// Clear removes all entries without invoking the eviction callback.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the current number of entries.
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns keys from most to least recently used.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

func (c *LRU[V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *LRU[V]) expired(entry *lruEntry[V]) bool {
	return !entry.expires.IsZero() && c.now().After(entry.expires)
}

// remove must be called with mu held.
func (c *LRU[V]) remove(element *list.Element) {
	delete(c.items, element.Value.(*lruEntry[V]).key)
	c.order.Remove(element)
}

func (c *LRU[V]) notify(entry *lruEntry[V]) {
	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}
}
