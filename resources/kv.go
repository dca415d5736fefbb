package resources

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/natsclient"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/retry"
)

// DefaultBucket holds one NodeRecord per node, keyed by node id.
const DefaultBucket = "dmod_resources"

// KV serves snapshots from a watched bucket of node records. Nodes report
// their own state by writing records; the snapshot follows within one
// watch delivery.
type KV struct {
	store  *natsclient.KVStore
	mirror *natsclient.Mirror[NodeRecord]
	logger *slog.Logger
}

// NewKV opens the bucket (creating it if needed) and loads current records.
func NewKV(ctx context.Context, client *natsclient.Client, bucket string, logger *slog.Logger) (*KV, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = slog.Default()
	}

	kv, err := retry.Value(ctx, retry.Startup(), func() (jetstream.KeyValue, error) {
		return client.KeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "DMOD node resources",
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "resources", "NewKV", "open bucket")
	}

	store := client.NewKVStore(kv)
	p := &KV{
		store:  store,
		mirror: natsclient.NewMirror(store, validRecord),
		logger: logger.With("component", "resources", "bucket", bucket),
	}
	if err := p.mirror.Start(ctx); err != nil {
		return nil, err
	}
	p.logger.Info("resource snapshot loaded", "nodes", len(p.mirror.Snapshot()))
	return p, nil
}

func validRecord(key string, r NodeRecord) error {
	if r.NodeID != key {
		return errors.Validation("node record stored under %q is for %q", key, r.NodeID)
	}
	return r.Validate()
}

// Snapshot implements Provider.
func (p *KV) Snapshot(context.Context) ([]allocation.NodeResources, error) {
	return snapshotOf(p.mirror.Snapshot()), nil
}

// Report stores a node's current state.
func (p *KV) Report(ctx context.Context, r NodeRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := natsclient.PutJSON(ctx, p.store, r.NodeID, r); err != nil {
		return errors.WrapTransient(err, "resources", "Report", "store node record")
	}
	p.mirror.Set(r.NodeID, r)
	return nil
}

// Remove drops a node from the pool.
func (p *KV) Remove(ctx context.Context, nodeID string) error {
	err := p.store.Delete(ctx, nodeID)
	if err != nil && !natsclient.IsKVNotFoundError(err) {
		return errors.WrapTransient(err, "resources", "Remove", "delete node record")
	}
	p.mirror.Remove(nodeID)
	return nil
}

// Close stops watching the bucket.
func (p *KV) Close() error {
	return p.mirror.Stop()
}

var _ Provider = (*KV)(nil)
