package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/natsclient"
)

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	gets  int
	fails error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) (*natsclient.KVEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.fails != nil {
		return nil, s.fails
	}
	v, ok := s.data[key]
	if !ok {
		return nil, natsclient.ErrKVKeyNotFound
	}
	return &natsclient.KVEntry{Key: key, Value: v, Revision: 1}, nil
}

func (s *memStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return uint64(len(s.data)), nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return natsclient.ErrKVKeyNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *memStore) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func TestStatic_Validate(t *testing.T) {
	v := NewStatic("alpha", "beta")
	ctx := context.Background()

	for secret, want := range map[string]bool{"alpha": true, "beta": true, "gamma": false, "": false, "alph": false} {
		ok, err := v.Validate(ctx, secret)
		require.NoError(t, err)
		assert.Equal(t, want, ok, secret)
	}
}

func TestAllowAll(t *testing.T) {
	ok, _ := AllowAll{}.Validate(context.Background(), "anything")
	assert.True(t, ok)
	ok, _ = AllowAll{}.Validate(context.Background(), "")
	assert.False(t, ok)
}

func TestKV_CreateValidateRevoke(t *testing.T) {
	store := newMemStore()
	v, err := newKV(store, KVConfig{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := v.Validate(ctx, "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)

	r, err := v.Create(ctx, "s3cret", "modeler", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, r.SessionID)
	assert.True(t, r.Expires.IsZero())

	ok, err = v.Validate(ctx, "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, v.Revoke(ctx, "s3cret"))
	ok, err = v.Validate(ctx, "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)

	// Revoking twice is fine.
	assert.NoError(t, v.Revoke(ctx, "s3cret"))
}

func TestKV_SecretNotStored(t *testing.T) {
	store := newMemStore()
	v, err := newKV(store, KVConfig{}, nil)
	require.NoError(t, err)

	_, err = v.Create(context.Background(), "s3cret", "", 0)
	require.NoError(t, err)
	for key, raw := range store.data {
		assert.NotContains(t, key, "s3cret")
		assert.NotContains(t, string(raw), "s3cret")
	}
}

func TestKV_CachesAcceptedSessions(t *testing.T) {
	store := newMemStore()
	v, err := newKV(store, KVConfig{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = v.Create(ctx, "s3cret", "", 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ok, err := v.Validate(ctx, "s3cret")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, store.lookups())

	// Rejections always go to the store.
	for i := 0; i < 3; i++ {
		_, _ = v.Validate(ctx, "unknown")
	}
	assert.Equal(t, 4, store.lookups())
}

func TestKV_Expiry(t *testing.T) {
	store := newMemStore()
	v, err := newKV(store, KVConfig{}, nil)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	_, err = v.Create(ctx, "s3cret", "", time.Hour)
	require.NoError(t, err)

	ok, _ := v.Validate(ctx, "s3cret")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	ok, _ = v.Validate(ctx, "s3cret")
	assert.False(t, ok, "cached session must still honor its expiry")

	ok, _ = v.Validate(ctx, "s3cret")
	assert.False(t, ok)
}

func TestKV_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.fails = fmt.Errorf("nats: timeout")
	v, err := newKV(store, KVConfig{}, nil)
	require.NoError(t, err)

	ok, err := v.Validate(context.Background(), "s3cret")
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsTransient(err))
}

func TestKV_UnreadableRecord(t *testing.T) {
	store := newMemStore()
	store.data[keyFor("s3cret")] = []byte("{")
	v, err := newKV(store, KVConfig{}, nil)
	require.NoError(t, err)

	ok, err := v.Validate(context.Background(), "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKV_CreateRequiresSecret(t *testing.T) {
	v, err := newKV(newMemStore(), KVConfig{}, nil)
	require.NoError(t, err)

	_, err = v.Create(context.Background(), "", "", 0)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
