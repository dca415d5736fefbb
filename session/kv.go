package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/natsclient"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/cache"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/retry"
)

// DefaultBucket holds one Record per live session.
const DefaultBucket = "dmod_sessions"

// Record is a stored session. The secret itself is never stored; records
// are keyed by its digest.
type Record struct {
	SessionID string    `json:"session_id"`
	User      string    `json:"user,omitempty"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires,omitempty"`
}

func (r Record) expired(now time.Time) bool {
	return !r.Expires.IsZero() && !now.Before(r.Expires)
}

type recordStore interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
}

// KVConfig tunes a KV validator.
type KVConfig struct {
	Bucket    string
	CacheSize int
	// CacheTTL bounds how long a revoked session can still be accepted by
	// another process.
	CacheTTL time.Duration
	Metrics  *metric.MetricsRegistry
}

// KV validates secrets against a session bucket. Accepted sessions are
// cached; rejections are not, so a session created elsewhere is seen at once.
type KV struct {
	store  recordStore
	cache  *cache.LRU[Record]
	logger *slog.Logger
	now    func() time.Time
}

// NewKV opens (creating if needed) the session bucket.
func NewKV(ctx context.Context, client *natsclient.Client, cfg KVConfig, logger *slog.Logger) (*KV, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	kv, err := retry.Value(ctx, retry.Startup(), func() (jetstream.KeyValue, error) {
		return client.KeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "DMOD sessions",
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "session", "NewKV", "open bucket")
	}
	return newKV(client.NewKVStore(kv), cfg, logger)
}

func newKV(store recordStore, cfg KVConfig, logger *slog.Logger) (*KV, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	lru, err := cache.NewLRU(cfg.CacheSize,
		cache.WithTTL[Record](cfg.CacheTTL),
		cache.WithMetrics[Record](cfg.Metrics, "sessions"))
	if err != nil {
		return nil, err
	}
	return &KV{
		store:  store,
		cache:  lru,
		logger: logger.With("component", "session"),
		now:    time.Now,
	}, nil
}

func keyFor(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return "session." + hex.EncodeToString(sum[:])
}

// Validate implements Validator.
func (v *KV) Validate(ctx context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	key := keyFor(secret)
	now := v.now()

	if r, ok := v.cache.Get(key); ok {
		if !r.expired(now) {
			return true, nil
		}
		v.cache.Delete(key)
		return false, nil
	}

	entry, err := v.store.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "session", "Validate", "read session")
	}

	var r Record
	if err := json.Unmarshal(entry.Value, &r); err != nil {
		v.logger.Warn("unreadable session record", "key", key, "error", err)
		return false, nil
	}
	if r.expired(now) {
		return false, nil
	}
	if _, err := v.cache.Set(key, r); err != nil {
		v.logger.Debug("session cache set failed", "error", err)
	}
	return true, nil
}

// Create stores a new session for secret. A zero ttl never expires.
func (v *KV) Create(ctx context.Context, secret, user string, ttl time.Duration) (*Record, error) {
	if secret == "" {
		return nil, errors.Validation("session secret is required")
	}
	now := v.now().UTC()
	r := Record{SessionID: uuid.NewString(), User: user, Created: now}
	if ttl > 0 {
		r.Expires = now.Add(ttl)
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "session", "Create", "encode session")
	}
	if _, err := v.store.Put(ctx, keyFor(secret), raw); err != nil {
		return nil, errors.WrapTransient(err, "session", "Create", "store session")
	}
	v.logger.Info("session created", "session_id", r.SessionID, "user", user)
	return &r, nil
}

// Revoke ends the session for secret.
func (v *KV) Revoke(ctx context.Context, secret string) error {
	key := keyFor(secret)
	v.cache.Delete(key)
	if err := v.store.Delete(ctx, key); err != nil && !natsclient.IsKVNotFoundError(err) {
		return errors.WrapTransient(err, "session", "Revoke", "delete session")
	}
	return nil
}

var _ Validator = (*KV)(nil)
