// Package http serves the hydrofabric subset service over HTTP.
//
// Routes, relative to the mount prefix:
//
//	POST /subset/cat_id_valid  {"id": "cat-1"}         -> {"catchment_id", "valid"}
//	POST /subset/for_cat_id    {"ids": ["cat-1", ...]} -> {"catchment_ids", "nexus_ids"}
//	POST /subset/upstream      {"ids": ["cat-1", ...]} -> {"catchment_ids", "nexus_ids"}
//	GET  /health
//
// Failures are answered with {"error": "..."}.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NOAA-OWP/DMOD-sub000/component"
	"github.com/NOAA-OWP/DMOD-sub000/config"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/gateway"
	"github.com/NOAA-OWP/DMOD-sub000/health"
	"github.com/NOAA-OWP/DMOD-sub000/hydrofabric"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/tlsutil"
)

// Endpoint names used in logs and metric labels.
const (
	endpointValid    = "cat_id_valid"
	endpointDirect   = "for_cat_id"
	endpointUpstream = "upstream"
	endpointHealth   = "health"
)

var _ gateway.Gateway = (*Gateway)(nil)

// Gateway is the subset service.
type Gateway struct {
	cfg      config.HTTPConfig
	graphs   hydrofabric.Provider
	reporter func() health.Status
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *Metrics

	tlsConfig *tls.Config

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	running        atomic.Bool
	startTime      time.Time
	requestsFailed atomic.Int64
	lastError      atomic.Value // string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics registers request metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(g *Gateway) { g.registry = registry }
}

// WithHealthReporter replaces the status served on /health. By default
// only the gateway's own health is reported.
func WithHealthReporter(fn func() health.Status) Option {
	return func(g *Gateway) { g.reporter = fn }
}

// NewGateway creates a subset service over the hydrofabric cfg names.
func NewGateway(cfg config.HTTPConfig, graphs hydrofabric.Provider, opts ...Option) (*Gateway, error) {
	if graphs == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil hydrofabric provider"), "Gateway", "NewGateway", "validate provider")
	}
	if cfg.HydrofabricUID == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("hydrofabric uid is required"), "Gateway", "NewGateway", "validate config")
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 1 << 20
	}
	tlsConfig, err := tlsutil.LoadServerConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	g := &Gateway{cfg: cfg, graphs: graphs, tlsConfig: tlsConfig, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "subset-gateway", "hydrofabric", cfg.HydrofabricUID)
	g.metrics = newMetrics(g.registry, "subset_gateway")
	if g.reporter == nil {
		g.reporter = func() health.Status {
			return health.FromComponentHealth("subset-gateway", g.Health())
		}
	}
	return g, nil
}

func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        "subset-gateway",
		Type:        "gateway",
		Description: "Hydrofabric subset service",
		Version:     "1.0.0",
	}
}

func (g *Gateway) Health() component.HealthStatus {
	running := g.running.Load()
	var uptime time.Duration
	if running {
		uptime = time.Since(g.startTime)
	}
	lastErr, _ := g.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(g.requestsFailed.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

// Initialize loads the hydrofabric once so a missing one fails startup.
func (g *Gateway) Initialize() error {
	if _, err := g.graphs.LoadGraph(g.cfg.HydrofabricUID); err != nil {
		return errors.WrapFatal(err, "Gateway", "Initialize", "load hydrofabric "+g.cfg.HydrofabricUID)
	}
	return nil
}

// Start listens on the configured address.
func (g *Gateway) Start(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running.Load() {
		return errors.WrapInvalid(fmt.Errorf("gateway already running"), "Gateway", "Start", "check state")
	}
	ln, err := tlsutil.Listen(g.cfg.Addr, g.tlsConfig)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start", "listen on "+g.cfg.Addr)
	}

	g.listener = ln
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := g.server
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.logger.Error("Subset gateway stopped serving", "error", err)
		}
	}()

	g.startTime = time.Now()
	g.running.Store(true)
	g.logger.Info("Subset gateway listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

func (g *Gateway) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown HTTP server")
	}
	return nil
}

// Handler returns the routes mounted at the root.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	g.RegisterHTTPHandlers("", mux)
	return mux
}

// RegisterHTTPHandlers mounts the subset routes under prefix.
func (g *Gateway) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = strings.TrimSuffix(prefix, "/")
	mux.HandleFunc("POST "+prefix+"/subset/cat_id_valid", g.wrap(endpointValid, g.handleValid))
	mux.HandleFunc("POST "+prefix+"/subset/for_cat_id", g.wrap(endpointDirect, g.subsetHandler(hydrofabric.Subsetter.DirectSubset)))
	mux.HandleFunc("POST "+prefix+"/subset/upstream", g.wrap(endpointUpstream, g.subsetHandler(hydrofabric.Subsetter.UpstreamSubset)))
	mux.HandleFunc("GET "+prefix+"/health", g.wrap(endpointHealth, g.handleHealth))
}

// handlerFunc returns the status code and body to write.
type handlerFunc func(r *http.Request) (int, any)

type errorBody struct {
	Error string `json:"error"`
}

func (g *Gateway) wrap(endpoint string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		status, body := h(r)
		if status >= http.StatusBadRequest {
			g.requestsFailed.Add(1)
			if eb, ok := body.(errorBody); ok {
				g.lastError.Store(eb.Error)
				g.logger.Debug("Subset request failed", "endpoint", endpoint, "status", status,
					"request_id", requestID, "error", eb.Error)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			g.logger.Warn("Write response failed", "endpoint", endpoint, "request_id", requestID, "error", err)
		}
		g.metrics.record(endpoint, status, time.Since(start))
	}
}

// decode reads a JSON body no larger than MaxRequestSize.
func (g *Gateway) decode(r *http.Request, dst any) (int, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxRequestSize+1))
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("failed to read request body")
	}
	if int64(len(data)) > g.cfg.MaxRequestSize {
		return http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body exceeds maximum size of %d bytes", g.cfg.MaxRequestSize)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return http.StatusBadRequest, fmt.Errorf("malformed JSON body: %v", err)
	}
	return http.StatusOK, nil
}

type validRequest struct {
	ID string `json:"id"`
}

type validResponse struct {
	CatchmentID string `json:"catchment_id"`
	Valid       bool   `json:"valid"`
}

func (g *Gateway) handleValid(r *http.Request) (int, any) {
	var req validRequest
	if status, err := g.decode(r, &req); err != nil {
		return status, errorBody{err.Error()}
	}
	if req.ID == "" {
		return http.StatusBadRequest, errorBody{"id is required"}
	}
	graph, err := g.graphs.LoadGraph(g.cfg.HydrofabricUID)
	if err != nil {
		return g.failure(err)
	}
	return http.StatusOK, validResponse{CatchmentID: req.ID, Valid: graph.CatchmentIDValid(req.ID)}
}

type subsetRequest struct {
	IDs []string `json:"ids"`
}

func (g *Gateway) subsetHandler(subset func(hydrofabric.Subsetter, []string) (*hydrofabric.Subset, error)) handlerFunc {
	return func(r *http.Request) (int, any) {
		var req subsetRequest
		if status, err := g.decode(r, &req); err != nil {
			return status, errorBody{err.Error()}
		}
		if len(req.IDs) == 0 {
			return http.StatusBadRequest, errorBody{"ids must be a non-empty list"}
		}
		graph, err := g.graphs.LoadGraph(g.cfg.HydrofabricUID)
		if err != nil {
			return g.failure(err)
		}
		result, err := subset(graph, req.IDs)
		if err != nil {
			return g.failure(err)
		}
		return http.StatusOK, result
	}
}

func (g *Gateway) handleHealth(*http.Request) (int, any) {
	status := g.reporter()
	if status.IsUnhealthy() {
		return http.StatusServiceUnavailable, status
	}
	return http.StatusOK, status
}

// failure maps subset and hydrofabric errors to a status and a message
// safe to return to the client.
func (g *Gateway) failure(err error) (int, any) {
	if errors.Is(err, errors.ErrUnknownHydrofabric) {
		g.logger.Error("Configured hydrofabric unavailable", "error", err)
		return http.StatusServiceUnavailable, errorBody{"hydrofabric unavailable"}
	}
	if de, ok := errors.AsDMOD(err); ok && de.Kind != errors.KindInternal {
		return http.StatusBadRequest, errorBody{de.Message}
	}
	g.logger.Error("Subset request failed", "error", err)
	return http.StatusInternalServerError, errorBody{"internal server error"}
}
