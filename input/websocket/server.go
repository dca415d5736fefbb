// Package websocket serves the DMOD request protocol over persistent
// websocket connections.
//
// Each connection is read by its own goroutine. Every text or binary frame
// is one request; requests are handed to a shared worker pool which calls
// the Handler and writes the response envelope back on the originating
// connection. Responses to requests on the same connection may arrive out
// of order when more than one worker is configured.
package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/NOAA-OWP/DMOD-sub000/component"
	"github.com/NOAA-OWP/DMOD-sub000/config"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/message"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/tlsutil"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/worker"
)

// Handler produces the response for one raw request.
type Handler interface {
	Handle(ctx context.Context, raw []byte) *message.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, raw []byte) *message.Response

func (f HandlerFunc) Handle(ctx context.Context, raw []byte) *message.Response {
	return f(ctx, raw)
}

var _ component.LifecycleComponent = (*Server)(nil)

// Server is the websocket request channel.
type Server struct {
	name     string
	cfg      config.ServerConfig
	handler  Handler
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *Metrics

	upgrader   websocket.Upgrader
	tlsConfig  *tls.Config
	pool       *worker.Pool[*request]
	httpServer *http.Server
	listener   net.Listener

	conns   map[string]*conn
	connsMu sync.Mutex
	readers sync.WaitGroup

	lifecycleMu sync.Mutex
	started     atomic.Bool
	startTime   time.Time
	errorCount  atomic.Int64
	lastError   atomic.Value // string
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter // nil when unlimited
}

type request struct {
	id       string
	conn     *conn
	raw      []byte
	received time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics registers server and worker pool metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithName overrides the component name.
func WithName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
	}
}

// NewServer creates a server that answers requests with handler.
func NewServer(cfg config.ServerConfig, handler Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil handler"), "websocket", "NewServer", "validate handler")
	}
	if cfg.Workers < 1 || cfg.QueueSize < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("workers and queue_size must be positive, got %d and %d", cfg.Workers, cfg.QueueSize),
			"websocket", "NewServer", "validate pool size")
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	tlsConfig, err := tlsutil.LoadServerConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	s := &Server{
		name:      "websocket",
		cfg:       cfg,
		handler:   handler,
		logger:    slog.Default(),
		conns:     make(map[string]*conn),
		tlsConfig: tlsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", s.name)
	s.metrics = newMetrics(s.registry, s.name)

	var poolOpts []worker.Option[*request]
	if s.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[*request](s.registry, s.name+"_pool"))
	}
	s.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, s.process, poolOpts...)
	return s, nil
}

func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        "transport",
		Description: "Websocket request channel",
		Version:     "1.0.0",
	}
}

func (s *Server) Health() component.HealthStatus {
	started := s.started.Load()
	var uptime time.Duration
	if started {
		uptime = time.Since(s.startTime)
	}
	lastErr, _ := s.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    started,
		LastCheck:  time.Now(),
		ErrorCount: int(s.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

func (s *Server) Initialize() error {
	return nil
}

// Start binds the listener and begins serving.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started.Load() {
		return errors.WrapInvalid(fmt.Errorf("server already started"), "websocket", "Start", "check state")
	}

	ln, err := tlsutil.Listen(s.cfg.Addr, s.tlsConfig)
	if err != nil {
		return errors.WrapFatal(err, "websocket", "Start", "listen on "+s.cfg.Addr)
	}
	if err := s.pool.Start(ctx); err != nil {
		_ = ln.Close()
		return errors.WrapFatal(err, "websocket", "Start", "start worker pool")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(ctx, w, r)
	})
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.trackError("serve", err)
		}
	}()

	s.startTime = time.Now()
	s.started.Store(true)
	s.logger.Info("Websocket server listening", "addr", ln.Addr().String(), "path", s.cfg.Path)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops accepting connections, answers queued requests, then closes
// every client connection.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started.Load() {
		return nil
	}
	s.started.Store(false)
	deadline := time.Now().Add(timeout)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	// Shutdown does not touch hijacked connections.
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	poolErr := s.pool.Stop(time.Until(deadline))

	s.connsMu.Lock()
	for _, c := range s.conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			"websocket", "Stop", "wait for readers")
	}

	if poolErr != nil {
		return errors.WrapTransient(poolErr, "websocket", "Stop", "drain worker pool")
	}
	s.logger.Info("Websocket server stopped")
	return nil
}

func (s *Server) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.trackError("upgrade", err)
		return
	}

	c := &conn{id: uuid.NewString(), ws: ws}
	if s.cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), max(s.cfg.RateBurst, 1))
	}
	s.connsMu.Lock()
	s.conns[c.id] = c
	s.connsMu.Unlock()
	s.metrics.connectionOpened()
	s.logger.Debug("Client connected", "conn", c.id, "remote", r.RemoteAddr)

	s.readers.Add(1)
	go s.readLoop(ctx, c)
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	defer s.readers.Done()
	defer func() {
		_ = c.ws.Close()
		s.connsMu.Lock()
		delete(s.conns, c.id)
		s.connsMu.Unlock()
		s.metrics.connectionClosed()
		s.logger.Debug("Client disconnected", "conn", c.id)
	}()

	if s.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	extend := func() {
		if s.cfg.ReadTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		kind, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.trackError("read", err)
			}
			return
		}
		extend()
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		req := &request{id: uuid.NewString(), conn: c, raw: raw, received: time.Now()}
		s.metrics.messageReceived()
		if c.limiter != nil && !c.limiter.Allow() {
			s.reject(req, message.ReasonRateLimited, "too many requests on this connection, slow down")
			continue
		}
		if err := s.pool.Submit(req); err != nil {
			msg := "the server is busy, retry later"
			if err != worker.ErrQueueFull {
				msg = "the server is shutting down"
			}
			s.reject(req, message.ReasonUnavailable, msg)
		}
	}
}

// reject answers a request without dispatching it.
func (s *Server) reject(req *request, reason, msg string) {
	s.metrics.messageRejected()
	s.logger.Warn("Request rejected", "conn", req.conn.id, "request", req.id, "reason", reason)
	if werr := s.write(req.conn, message.Failure(reason, msg)); werr != nil {
		s.trackError("write", werr)
	}
}

// process runs on a pool worker.
func (s *Server) process(ctx context.Context, req *request) error {
	resp := s.handler.Handle(ctx, req.raw)
	if err := s.write(req.conn, resp); err != nil {
		s.trackError("write", err)
		return err
	}
	s.metrics.responseSent(time.Since(req.received))
	return nil
}

func (s *Server) write(c *conn, resp *message.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.WrapFatal(err, "websocket", "write", "encode response")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "websocket", "write", "write response to "+c.id)
	}
	return nil
}

func (c *conn) close(code int, text string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.ws.Close()
}

func (s *Server) trackError(kind string, err error) {
	s.errorCount.Add(1)
	s.lastError.Store(err.Error())
	s.metrics.error(kind)
	s.logger.Warn("Websocket error", "type", kind, "error", err)
}
