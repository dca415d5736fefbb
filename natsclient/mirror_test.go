package natsclient

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntry struct {
	key   string
	value []byte
	op    jetstream.KeyValueOp
	rev   uint64
}

func (e fakeEntry) Bucket() string                  { return "test" }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.value }
func (e fakeEntry) Revision() uint64                { return e.rev }
func (e fakeEntry) Created() time.Time              { return time.Time{} }
func (e fakeEntry) Delta() uint64                   { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

type node struct {
	CPUs int `json:"cpus"`
}

func positive(_ string, n node) error {
	if n.CPUs < 0 {
		return fmt.Errorf("negative cpus")
	}
	return nil
}

func TestMirror_Apply(t *testing.T) {
	m := NewMirror[node](nil, positive)

	m.apply(fakeEntry{key: "node-a", value: []byte(`{"cpus":4}`), op: jetstream.KeyValuePut, rev: 1})
	m.apply(fakeEntry{key: "node-b", value: []byte(`{"cpus":8}`), op: jetstream.KeyValuePut, rev: 2})

	got, ok := m.Get("node-a")
	require.True(t, ok)
	assert.Equal(t, 4, got.CPUs)
	assert.Len(t, m.Snapshot(), 2)

	m.apply(fakeEntry{key: "node-a", op: jetstream.KeyValueDelete, rev: 3})
	_, ok = m.Get("node-a")
	assert.False(t, ok)

	m.apply(fakeEntry{key: "node-b", op: jetstream.KeyValuePurge, rev: 4})
	assert.Empty(t, m.Snapshot())
}

func TestMirror_RejectsInvalidEntries(t *testing.T) {
	m := NewMirror[node](nil, positive)
	m.Set("node-a", node{CPUs: 2})

	// A bad update removes the previous value rather than keeping stale state.
	m.apply(fakeEntry{key: "node-a", value: []byte(`{"cpus":-1}`), op: jetstream.KeyValuePut})
	_, ok := m.Get("node-a")
	assert.False(t, ok)

	m.apply(fakeEntry{key: "node-b", value: []byte(`not json`), op: jetstream.KeyValuePut})
	assert.Empty(t, m.Snapshot())
}

func TestMirror_SnapshotIsStable(t *testing.T) {
	m := NewMirror[node](nil, nil)
	m.Set("node-a", node{CPUs: 1})

	before := m.Snapshot()
	m.Set("node-b", node{CPUs: 2})

	assert.Len(t, before, 1)
	assert.Len(t, m.Snapshot(), 2)
}

func TestMirror_StopWithoutStart(t *testing.T) {
	m := NewMirror[node](nil, nil)
	assert.NoError(t, m.Stop())
}

func TestMirror_ConcurrentWriters(t *testing.T) {
	m := NewMirror[node](nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(fmt.Sprintf("node-%d", i), node{CPUs: i})
			_ = m.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.Snapshot(), 50)
}
