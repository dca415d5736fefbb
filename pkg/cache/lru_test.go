package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

func TestNewLRU_InvalidSize(t *testing.T) {
	_, err := NewLRU[string](0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewLRU(2, WithEvictionCallback[int](func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)

	created, err := c.Set("a", 1)
	require.NoError(t, err)
	assert.True(t, created)
	_, _ = c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	_, _ = c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())
}

func TestLRU_UpdateExisting(t *testing.T) {
	c, err := NewLRU[string](2)
	require.NoError(t, err)

	_, _ = c.Set("k", "v1")
	created, err := c.Set("k", "v2")
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Size())
}

func TestLRU_EmptyKeyRejected(t *testing.T) {
	c, err := NewLRU[int](1)
	require.NoError(t, err)

	_, err = c.Set("", 1)
	assert.True(t, errors.IsInvalid(err))
}

func TestLRU_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c, err := NewLRU(4, WithTTL[bool](time.Minute), withClock[bool](clock))
	require.NoError(t, err)

	_, _ = c.Set("secret", true)
	_, ok := c.Get("secret")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("secret")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c, err := NewLRU[int](4)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func TestLRU_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewLRU(1, WithMetrics[int](registry, "graphs"))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	_, _ = c.Set("b", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("eviction")))
}

func TestLRU_Concurrent(t *testing.T) {
	c, err := NewLRU[int](16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := string(rune('a' + (g+i)%26))
				_, _ = c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 16)
}
