package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/natsclient"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/retry"
)

// Default bucket names.
const (
	DefaultDatasetBucket = "dmod_datasets"
	DefaultItemBucket    = "dmod_dataset_items"
)

// KVConfig names the buckets backing a KV catalog.
type KVConfig struct {
	DatasetBucket string
	ItemBucket    string
	Retry         retry.Config
}

func (c *KVConfig) defaults() {
	if c.DatasetBucket == "" {
		c.DatasetBucket = DefaultDatasetBucket
	}
	if c.ItemBucket == "" {
		c.ItemBucket = DefaultItemBucket
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig()
	}
}

// KV is a catalog stored in JetStream: descriptors in a key-value bucket,
// item content in an object store. Reads are served from a watched
// snapshot of the descriptor bucket.
type KV struct {
	store   *natsclient.KVStore
	objects jetstream.ObjectStore
	items   string
	mirror  *natsclient.Mirror[domain.DatasetDescriptor]
	retry   retry.Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewKV opens (creating if needed) the catalog buckets and loads the
// current datasets. Call Close to stop watching.
func NewKV(ctx context.Context, client *natsclient.Client, cfg KVConfig, logger *slog.Logger) (*KV, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	var (
		bucket  jetstream.KeyValue
		objects jetstream.ObjectStore
	)
	err := errors.Retry(ctx, retry.Startup(), func() error {
		var err error
		if bucket, err = client.KeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.DatasetBucket,
			Description: "DMOD dataset descriptors",
		}); err != nil {
			return err
		}
		objects, err = client.ObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      cfg.ItemBucket,
			Description: "DMOD dataset items",
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "catalog", "NewKV", "open buckets")
	}

	store := client.NewKVStore(bucket)
	c := &KV{
		store:   store,
		objects: objects,
		items:   cfg.ItemBucket,
		mirror: natsclient.NewMirror(store, func(key string, d domain.DatasetDescriptor) error {
			if d.Name != key {
				return errors.Validation("dataset stored under %q is named %q", key, d.Name)
			}
			return d.Validate()
		}),
		retry:  cfg.Retry,
		logger: logger.With("component", "catalog", "bucket", cfg.DatasetBucket),
		now:    time.Now,
	}
	if err := c.mirror.Start(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("dataset catalog loaded", "datasets", len(c.mirror.Snapshot()))
	return c, nil
}

// Close stops watching the descriptor bucket.
func (c *KV) Close() error {
	return c.mirror.Stop()
}

// ListDatasets implements Provider.
func (c *KV) ListDatasets(_ context.Context, category domain.DataCategory, format domain.DataFormat) ([]domain.DatasetDescriptor, error) {
	snap := c.mirror.Snapshot()
	all := make([]domain.DatasetDescriptor, 0, len(snap))
	for _, d := range snap {
		all = append(all, d)
	}
	return Filter(all, category, format), nil
}

// GetDataset returns the named dataset.
func (c *KV) GetDataset(_ context.Context, name string) (*domain.DatasetDescriptor, error) {
	d, ok := c.mirror.Get(name)
	if !ok {
		return nil, notFound(name)
	}
	return &d, nil
}

// CreateDataset stores a new, empty dataset.
func (c *KV) CreateDataset(ctx context.Context, d domain.DatasetDescriptor) (*domain.DatasetDescriptor, error) {
	if err := d.Validate(); err != nil {
		return nil, errors.Validation("%v", err)
	}
	if d.UUID == "" {
		d.UUID = uuid.NewString()
	}
	if d.Created.IsZero() {
		d.Created = c.now().UTC()
	}
	if d.AccessLocation == "" {
		d.AccessLocation = "nats://" + c.items + "/" + d.Name
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "catalog", "CreateDataset", "encode descriptor")
	}
	err = errors.Retry(ctx, c.retry, func() error {
		_, err := c.store.Create(ctx, d.Name, raw)
		return classify(err, "CreateDataset", "store descriptor")
	})
	switch {
	case stderrors.Is(err, natsclient.ErrKVKeyExists):
		return nil, alreadyExists(d.Name)
	case err != nil:
		return nil, err
	}

	c.mirror.Set(d.Name, d)
	c.logger.Info("dataset created", "dataset", d.Name, "category", d.Category)
	return &d, nil
}

// DeleteDataset removes a dataset and its items.
func (c *KV) DeleteDataset(ctx context.Context, name string) error {
	if _, err := c.GetDataset(ctx, name); err != nil {
		return err
	}
	items, err := c.ListItems(ctx, name)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := c.removeObject(ctx, name, item); err != nil {
			return err
		}
	}

	err = errors.Retry(ctx, c.retry, func() error {
		return classify(c.store.Delete(ctx, name), "DeleteDataset", "delete descriptor")
	})
	if err != nil && !stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
		return err
	}
	c.mirror.Remove(name)
	c.logger.Info("dataset deleted", "dataset", name, "items", len(items))
	return nil
}

// AddItem stores data under item, replacing any previous content.
func (c *KV) AddItem(ctx context.Context, dataset, item string, data []byte) error {
	if _, err := c.writable(ctx, dataset); err != nil {
		return err
	}
	err := errors.Retry(ctx, c.retry, func() error {
		_, err := c.objects.PutBytes(ctx, objectName(dataset, item), data)
		return classify(err, "AddItem", "put object")
	})
	if err != nil {
		return err
	}
	return c.touch(ctx, dataset)
}

// RemoveItem deletes one item.
func (c *KV) RemoveItem(ctx context.Context, dataset, item string) error {
	if _, err := c.writable(ctx, dataset); err != nil {
		return err
	}
	if err := c.removeObject(ctx, dataset, item); err != nil {
		return err
	}
	return c.touch(ctx, dataset)
}

func (c *KV) removeObject(ctx context.Context, dataset, item string) error {
	err := errors.Retry(ctx, c.retry, func() error {
		return classify(c.objects.Delete(ctx, objectName(dataset, item)), "RemoveItem", "delete object")
	})
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return itemNotFound(dataset, item)
	}
	return err
}

// GetItem returns one item's content.
func (c *KV) GetItem(ctx context.Context, dataset, item string) ([]byte, error) {
	if _, err := c.GetDataset(ctx, dataset); err != nil {
		return nil, err
	}
	data, err := c.objects.GetBytes(ctx, objectName(dataset, item))
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, itemNotFound(dataset, item)
		}
		return nil, errors.WrapTransient(err, "catalog", "GetItem", "get object")
	}
	return data, nil
}

// ListItems returns a dataset's item names, sorted.
func (c *KV) ListItems(ctx context.Context, dataset string) ([]string, error) {
	if _, err := c.GetDataset(ctx, dataset); err != nil {
		return nil, err
	}
	infos, err := c.objects.List(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			return []string{}, nil
		}
		return nil, errors.WrapTransient(err, "catalog", "ListItems", "list objects")
	}

	prefix := dataset + "/"
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(info.Name, prefix))
	}
	sort.Strings(names)
	return names, nil
}

func (c *KV) writable(ctx context.Context, dataset string) (*domain.DatasetDescriptor, error) {
	d, err := c.GetDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if d.IsReadOnly {
		return nil, readOnly(dataset)
	}
	return d, nil
}

// touch bumps LastUpdated with a compare-and-swap on the stored descriptor.
func (c *KV) touch(ctx context.Context, dataset string) error {
	var updated domain.DatasetDescriptor
	err := c.store.UpdateWithRetry(ctx, dataset, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, notFound(dataset)
		}
		if err := json.Unmarshal(current, &updated); err != nil {
			return nil, errors.WrapInvalid(err, "catalog", "touch", "decode descriptor")
		}
		t := c.now().UTC()
		updated.LastUpdated = &t
		return json.Marshal(updated)
	})
	if err != nil {
		return err
	}
	c.mirror.Set(dataset, updated)
	return nil
}

func objectName(dataset, item string) string {
	return dataset + "/" + item
}

// classify marks storage failures transient so errors.Retry retries them.
// Domain outcomes such as missing keys pass through unchanged.
func classify(err error, method, action string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, natsclient.ErrKVKeyExists),
		stderrors.Is(err, natsclient.ErrKVKeyNotFound),
		stderrors.Is(err, jetstream.ErrObjectNotFound):
		return err
	case stderrors.Is(err, jetstream.ErrInvalidKey):
		return errors.Validation("%v", err)
	}
	return errors.WrapTransient(err, "catalog", method, action)
}

var _ Manager = (*KV)(nil)
