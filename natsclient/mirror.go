package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Mirror keeps an in-memory copy of a bucket's JSON values, refreshed by a
// watch. Readers get an immutable map that is replaced whole on each change.
type Mirror[T any] struct {
	kv       *KVStore
	validate func(key string, v T) error
	logger   *slog.Logger

	writeMu sync.Mutex
	current atomic.Pointer[map[string]T]

	ready     chan struct{}
	readyOnce sync.Once
	watcher   jetstream.KeyWatcher
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewMirror creates a mirror of kv. validate may be nil; entries it rejects
// are logged and left out.
func NewMirror[T any](kv *KVStore, validate func(key string, v T) error) *Mirror[T] {
	m := &Mirror[T]{
		kv:       kv,
		validate: validate,
		logger:   slog.Default(),
		ready:    make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if kv != nil {
		m.logger = kv.logger
	}
	empty := map[string]T{}
	m.current.Store(&empty)
	return m
}

// Start watches the bucket and blocks until its current contents are loaded.
// The watch runs until ctx is done or Stop is called.
func (m *Mirror[T]) Start(ctx context.Context) error {
	w, err := m.kv.Watch(ctx, ">")
	if err != nil {
		return errors.WrapTransient(err, "Mirror", "Start", "watch bucket")
	}
	m.watcher = w
	go m.run(ctx, w)

	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		_ = w.Stop()
		return errors.WrapTransient(ctx.Err(), "Mirror", "Start", "load bucket")
	}
}

// Stop ends the watch.
func (m *Mirror[T]) Stop() error {
	if m.watcher == nil {
		return nil
	}
	var err error
	m.stopOnce.Do(func() {
		close(m.stop)
		err = m.watcher.Stop()
		<-m.done
	})
	return err
}

func (m *Mirror[T]) run(ctx context.Context, w jetstream.KeyWatcher) {
	defer close(m.done)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in kv mirror", "error", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case entry, ok := <-w.Updates():
			if !ok {
				return
			}
			if entry == nil {
				m.readyOnce.Do(func() { close(m.ready) })
				continue
			}
			m.apply(entry)
		}
	}
}

func (m *Mirror[T]) apply(entry jetstream.KeyValueEntry) {
	key := entry.Key()
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		m.Remove(key)
		return
	}

	v, err := m.decode(key, entry.Value())
	if err != nil {
		m.logger.Warn("skipping kv entry", "key", key, "revision", entry.Revision(), "error", err)
		m.Remove(key)
		return
	}
	m.Set(key, v)
}

func (m *Mirror[T]) decode(key string, raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	if m.validate != nil {
		if err := m.validate(key, v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// Snapshot returns the current contents. The map must not be modified.
func (m *Mirror[T]) Snapshot() map[string]T {
	return *m.current.Load()
}

// Get returns one value.
func (m *Mirror[T]) Get(key string) (T, bool) {
	v, ok := (*m.current.Load())[key]
	return v, ok
}

// Set records v locally ahead of the watch, so a writer reads its own write.
func (m *Mirror[T]) Set(key string, v T) {
	m.swap(func(next map[string]T) { next[key] = v })
}

// Remove drops key locally.
func (m *Mirror[T]) Remove(key string) {
	if _, ok := m.Get(key); !ok {
		return
	}
	m.swap(func(next map[string]T) { delete(next, key) })
}

func (m *Mirror[T]) swap(fn func(map[string]T)) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	prev := *m.current.Load()
	next := make(map[string]T, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	fn(next)
	m.current.Store(&next)
}
