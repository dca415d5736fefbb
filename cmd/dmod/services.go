package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/catalog"
	"github.com/NOAA-OWP/DMOD-sub000/component"
	"github.com/NOAA-OWP/DMOD-sub000/config"
	"github.com/NOAA-OWP/DMOD-sub000/dispatcher"
	subsetgw "github.com/NOAA-OWP/DMOD-sub000/gateway/http"
	"github.com/NOAA-OWP/DMOD-sub000/health"
	"github.com/NOAA-OWP/DMOD-sub000/hydrofabric"
	"github.com/NOAA-OWP/DMOD-sub000/input/natsrpc"
	"github.com/NOAA-OWP/DMOD-sub000/input/websocket"
	"github.com/NOAA-OWP/DMOD-sub000/jobs"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/natsclient"
	"github.com/NOAA-OWP/DMOD-sub000/resources"
	"github.com/NOAA-OWP/DMOD-sub000/session"
)

// app is the wired service set.
type app struct {
	manager  *component.Manager
	monitor  *health.Monitor
	registry *metric.MetricsRegistry
	nats     *natsclient.Client
	closers  []func() error
	logger   *slog.Logger
}

// buildApp creates every provider and service cfg enables. Nothing is
// started; NATS, when enabled, is connected because the providers open
// their buckets at construction.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		monitor:  health.NewMonitor(),
		registry: metric.NewMetricsRegistry(),
		logger:   logger,
	}
	a.manager = component.NewManager(logger, component.WithMetrics(a.registry))

	deps, err := a.buildDependencies(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	d := dispatcher.New(deps,
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(a.registry))

	if err := a.addServices(cfg, d, deps.Graphs); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) buildDependencies(ctx context.Context, cfg *config.Config) (dispatcher.Dependencies, error) {
	deps := dispatcher.Dependencies{StrictAmbiguity: cfg.Resolver.StrictAmbiguity}

	graphs, err := hydrofabric.NewCachedProvider(
		hydrofabric.NewLoader(cfg.Hydrofabric.DataDir),
		cfg.Hydrofabric.CacheSize, a.registry, a.logger)
	if err != nil {
		return deps, fmt.Errorf("create hydrofabric provider: %w", err)
	}
	deps.Graphs = graphs

	if !cfg.NATS.Enabled {
		a.logger.Warn("NATS disabled, using in-memory catalog and static resources; accepted jobs are not forwarded")
		deps.Datasets = catalog.NewMemory()
		deps.Resources = staticNodes(cfg.Resources.Nodes)
		if len(cfg.Session.Secrets) > 0 {
			deps.Sessions = session.NewStatic(cfg.Session.Secrets...)
		}
		deps.Jobs = &jobs.Recorder{}
		return deps, nil
	}

	client, err := a.connectNATS(ctx, cfg.NATS)
	if err != nil {
		return deps, err
	}

	datasets, err := catalog.NewKV(ctx, client, catalog.KVConfig{
		DatasetBucket: cfg.NATS.DatasetBucket,
		ItemBucket:    cfg.NATS.ItemBucket,
	}, a.logger)
	if err != nil {
		return deps, fmt.Errorf("open dataset catalog: %w", err)
	}
	a.closers = append(a.closers, datasets.Close)
	deps.Datasets = datasets

	nodes, err := resources.NewKV(ctx, client, cfg.NATS.ResourceBucket, a.logger)
	if err != nil {
		return deps, fmt.Errorf("open resource bucket: %w", err)
	}
	a.closers = append(a.closers, nodes.Close)
	deps.Resources = nodes

	sessions, err := session.NewKV(ctx, client, session.KVConfig{
		Bucket:    cfg.NATS.SessionBucket,
		CacheSize: cfg.Session.CacheSize,
		CacheTTL:  cfg.Session.CacheTTL,
		Metrics:   a.registry,
	}, a.logger)
	if err != nil {
		return deps, fmt.Errorf("open session bucket: %w", err)
	}
	deps.Sessions = sessions

	sink, err := jobs.NewNATSSink(ctx, client, cfg.NATS.JobSubject, a.logger)
	if err != nil {
		return deps, fmt.Errorf("create job sink: %w", err)
	}
	deps.Jobs = sink
	return deps, nil
}

func (a *app) connectNATS(ctx context.Context, cfg config.NATSConfig) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithName(cfg.Name),
		natsclient.WithTimeout(cfg.Timeout),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithMetrics(a.registry),
		natsclient.WithHealthChangeCallback(a.trackNATS()),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(cfg.DrainTimeout))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLSCertFile != "" || cfg.TLSCAFile != "" {
		opts = append(opts, natsclient.WithTLS(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile))
	}

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	a.nats = client

	a.logger.Info("Connecting to NATS")
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

// addServices registers the long-running services in start order.
func (a *app) addServices(cfg *config.Config, d *dispatcher.Dispatcher, graphs hydrofabric.Provider) error {
	if cfg.Metrics.Enabled {
		srv := &metricsService{server: metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry)}
		if err := a.manager.Add(srv); err != nil {
			return err
		}
	}

	if cfg.Server.Enabled {
		ws, err := websocket.NewServer(cfg.Server, d,
			websocket.WithLogger(a.logger),
			websocket.WithMetrics(a.registry))
		if err != nil {
			return fmt.Errorf("create websocket server: %w", err)
		}
		if err := a.manager.Add(ws); err != nil {
			return err
		}
	}

	if a.nats != nil {
		listener, err := natsrpc.NewListener(a.nats, cfg.NATS.RequestSubject, cfg.NATS.QueueGroup, d, a.logger)
		if err != nil {
			return fmt.Errorf("create NATS listener: %w", err)
		}
		if err := a.manager.Add(listener); err != nil {
			return err
		}
	}

	if cfg.HTTP.Enabled {
		gw, err := subsetgw.NewGateway(cfg.HTTP, graphs,
			subsetgw.WithLogger(a.logger),
			subsetgw.WithMetrics(a.registry),
			subsetgw.WithHealthReporter(a.status))
		if err != nil {
			return fmt.Errorf("create subset gateway: %w", err)
		}
		if err := a.manager.Add(gw); err != nil {
			return err
		}
	}
	return nil
}

// trackNATS feeds connection changes to the health monitor and the
// connection gauge.
func (a *app) trackNATS() func(bool) {
	track := a.monitor.Track("nats")
	core := a.registry.CoreMetrics()
	return func(healthy bool) {
		track(healthy)
		core.RecordNATSStatus(healthy)
	}
}

// status reports every managed service plus the NATS connection.
func (a *app) status() health.Status {
	services := health.FromComponents("services", a.manager.Health())
	subs := append([]health.Status{services}, a.monitor.All()...)
	return health.Aggregate(appName, subs)
}

// close releases the providers and the NATS connection.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close provider failed", "error", err)
		}
	}
	a.closers = nil
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("Close NATS connection failed", "error", err)
		}
	}
}

func staticNodes(nodes []config.NodeConfig) resources.Static {
	out := make(resources.Static, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, allocation.NodeResources{NodeID: n.ID, AvailableCPUs: n.CPUs})
	}
	return out
}

// metricsService runs the Prometheus endpoint under the component manager.
type metricsService struct {
	server  *metric.Server
	started time.Time
	running atomic.Bool
}

func (m *metricsService) Meta() component.Metadata {
	return component.Metadata{
		Name:        "metrics",
		Type:        "observability",
		Description: "Prometheus endpoint at " + m.server.Address(),
		Version:     Version,
	}
}

func (m *metricsService) Health() component.HealthStatus {
	running := m.running.Load()
	h := component.HealthStatus{Healthy: running, LastCheck: time.Now()}
	if running {
		h.Uptime = time.Since(m.started)
	}
	return h
}

func (m *metricsService) Initialize() error { return nil }

func (m *metricsService) Start(context.Context) error {
	if err := m.server.Start(); err != nil {
		return err
	}
	m.started = time.Now()
	m.running.Store(true)
	return nil
}

func (m *metricsService) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	m.running.Store(false)
	return m.server.Stop(ctx)
}
