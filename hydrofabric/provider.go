package hydrofabric

import (
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/cache"
)

// CachedProvider memoizes graphs from another provider in an LRU cache.
// Concurrent misses for the same uid share one load.
type CachedProvider struct {
	source  Provider
	graphs  *cache.LRU[*Graph]
	loading singleflight.Group
	logger  *slog.Logger
}

// NewCachedProvider wraps source with an LRU of at most size graphs.
func NewCachedProvider(source Provider, size int, registry *metric.MetricsRegistry, logger *slog.Logger) (*CachedProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []cache.Option[*Graph]{
		cache.WithEvictionCallback[*Graph](func(uid string, _ *Graph) {
			logger.Debug("hydrofabric evicted from cache", "uid", uid)
		}),
	}
	if registry != nil {
		opts = append(opts, cache.WithMetrics[*Graph](registry, "hydrofabric"))
	}

	graphs, err := cache.NewLRU(size, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "CachedProvider", "NewCachedProvider", "create graph cache")
	}
	return &CachedProvider{source: source, graphs: graphs, logger: logger}, nil
}

// LoadGraph returns the cached graph for uid, loading it on a miss.
func (p *CachedProvider) LoadGraph(uid string) (*Graph, error) {
	if g, ok := p.graphs.Get(uid); ok {
		return g, nil
	}

	v, err, _ := p.loading.Do(uid, func() (any, error) {
		g, err := p.source.LoadGraph(uid)
		if err != nil {
			return nil, err
		}
		if _, err := p.graphs.Set(uid, g); err != nil {
			return nil, errors.WrapInvalid(err, "CachedProvider", "LoadGraph", "cache graph")
		}
		cats, nexs := g.Size()
		p.logger.Info("hydrofabric loaded", "uid", uid, "catchments", cats, "nexuses", nexs)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Graph), nil
}

// Static serves fixed graphs keyed by uid.
type Static map[string]*Graph

// LoadGraph returns the graph registered under uid.
func (s Static) LoadGraph(uid string) (*Graph, error) {
	if g, ok := s[uid]; ok {
		return g, nil
	}
	return nil, errors.Graph(errors.ErrUnknownHydrofabric, "unknown hydrofabric %q", uid)
}
