package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// ConnectionStatus is the state of the client's connection.
type ConnectionStatus int

// Connection states
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Client errors
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
	ErrClosed       = stderrors.New("client is closed")
)

// Client owns one NATS connection. Failed operations feed a circuit breaker
// that stops further attempts for a backoff period once a threshold is hit.
type Client struct {
	url    string
	logger *slog.Logger

	status   atomic.Value // ConnectionStatus
	failures atomic.Int32
	closed   atomic.Bool

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	breaker breakerState

	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	healthInterval time.Duration
	clientName     string

	username string
	password string
	token    string

	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	metrics        *clientMetrics
	onHealthChange func(bool)

	healthDone chan struct{}
	closeMu    sync.Mutex
}

type breakerState struct {
	mu         sync.Mutex
	round      int32
	threshold  int32
	backoff    time.Duration
	maxBackoff time.Duration
	lastFail   time.Time
}

// NewClient creates a disconnected client for url.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:            url,
		logger:         slog.Default(),
		maxReconnects:  -1,
		reconnectWait:  2 * time.Second,
		pingInterval:   30 * time.Second,
		timeout:        5 * time.Second,
		drainTimeout:   30 * time.Second,
		healthInterval: 10 * time.Second,
		breaker: breakerState{
			threshold:  5,
			backoff:    time.Second,
			maxBackoff: time.Minute,
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient", "url", url)
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the server URL.
func (c *Client) URL() string {
	return c.url
}

// Status returns the connection state.
func (c *Client) Status() ConnectionStatus {
	if s, ok := c.status.Load().(ConnectionStatus); ok {
		return s
	}
	return StatusDisconnected
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(s)
	c.metrics.setStatus(s)
}

// IsHealthy reports whether the client is connected.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns failures recorded since the last success.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the wait applied the next time the circuit opens.
func (c *Client) Backoff() time.Duration {
	c.breaker.mu.Lock()
	defer c.breaker.mu.Unlock()
	return c.breaker.backoff
}

// Conn returns the underlying connection, nil when disconnected.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) recordFailure(operation string) {
	total := c.failures.Add(1)
	c.metrics.recordOperation(operation, false)

	b := &c.breaker
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFail = time.Now()
	b.round++
	if b.round < b.threshold {
		return
	}
	b.round = 0

	wait := b.backoff
	b.backoff = min(b.backoff*2, b.maxBackoff)
	if c.Status() == StatusCircuitOpen {
		c.logger.Warn("circuit breaker still open", "failures", total, "next_backoff", b.backoff)
		return
	}

	c.setStatus(StatusCircuitOpen)
	c.logger.Warn("circuit breaker opened", "failures", total, "backoff", wait)
	time.AfterFunc(wait, c.halfOpen)
}

func (c *Client) halfOpen() {
	if c.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected) {
		c.metrics.setStatus(StatusDisconnected)
		c.logger.Debug("circuit breaker half open")
	}
}

func (c *Client) recordSuccess(operation string) {
	c.metrics.recordOperation(operation, true)
	if c.failures.Load() == 0 {
		return
	}
	c.failures.Store(0)

	b := &c.breaker
	b.mu.Lock()
	b.round = 0
	b.backoff = time.Second
	b.lastFail = time.Time{}
	b.mu.Unlock()

	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("disconnected", "error", err)
			c.notifyHealth(false)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			c.setStatus(StatusConnected)
			c.recordSuccess("reconnect")
			c.logger.Info("reconnected")
			c.notifyHealth(true)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.setStatus(StatusDisconnected)
			c.notifyHealth(false)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			c.logger.Error("async error", "subject", subject, "error", err)
		}),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.tlsCertFile != "" && c.tlsKeyFile != "" {
		opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
	}
	if c.tlsCAFile != "" {
		opts = append(opts, nats.RootCAs(c.tlsCAFile))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

func (c *Client) notifyHealth(healthy bool) {
	if fn := c.onHealthChange; fn != nil {
		go fn(healthy)
	}
}

// Connect dials the server and initializes JetStream.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	c.setStatus(StatusConnecting)
	c.logger.Info("connecting")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
	}
	if r.err != nil {
		c.recordFailure("connect")
		if c.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(r.err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(r.conn)
	if err != nil {
		r.conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapFatal(err, "Client", "Connect", "initialize jetstream")
	}

	c.mu.Lock()
	c.conn = r.conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.recordSuccess("connect")
	c.logger.Info("connected")
	if c.healthInterval > 0 {
		c.startHealthMonitor()
	}
	c.notifyHealth(true)
	return nil
}

// WaitForConnection blocks until the client is connected or ctx is done.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
		}
	}
}

// Close unsubscribes, drains and closes the connection. Later calls are no-ops.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stopHealthMonitor()

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+sub.Subject))
		}
	}
	c.subs = nil

	if c.conn != nil {
		timeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}
		drained := make(chan error, 1)
		go func() { drained <- c.conn.Drain() }()
		select {
		case err := <-drained:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(timeout):
			errs = append(errs, errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout),
				"Client", "Close", "drain connection"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain connection"))
		}
		c.conn.Close()
		c.conn = nil
		c.js = nil
	}

	c.username, c.password, c.token = "", "", ""
	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

// ready returns the live connection or why there is none.
func (c *Client) ready() (*nats.Conn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// Publish sends data on subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := c.ready()
	if err != nil {
		return err
	}
	if err := conn.Publish(subject, data); err != nil {
		c.recordFailure("publish")
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	c.recordSuccess("publish")
	return nil
}

// Request sends data on subject and waits for one reply. The wait is bounded
// by ctx, or by the client timeout when ctx has no deadline.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn, err := c.ready()
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if stderrors.Is(err, nats.ErrNoResponders) {
			c.recordSuccess("request")
			return nil, errors.WrapInvalid(err, "Client", "Request", "request "+subject)
		}
		c.recordFailure("request")
		return nil, errors.WrapTransient(err, "Client", "Request", "request "+subject)
	}
	c.recordSuccess("request")
	return msg.Data, nil
}

// MsgHandler processes one core NATS message.
type MsgHandler func(ctx context.Context, msg *nats.Msg)

// Subscribe delivers messages on subject to handler.
func (c *Client) Subscribe(ctx context.Context, subject string, handler MsgHandler) (*nats.Subscription, error) {
	return c.QueueSubscribe(ctx, subject, "", handler)
}

// QueueSubscribe delivers messages on subject to handler, load balanced
// across subscribers sharing queue. An empty queue subscribes normally.
// Each message gets a context derived from ctx, bounded by the client timeout.
func (c *Client) QueueSubscribe(ctx context.Context, subject, queue string, handler MsgHandler) (*nats.Subscription, error) {
	conn, err := c.ready()
	if err != nil {
		return nil, err
	}
	cb := func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, c.timeout*6)
		defer cancel()
		handler(msgCtx, msg)
	}

	var sub *nats.Subscription
	if queue == "" {
		sub, err = conn.Subscribe(subject, cb)
	} else {
		sub, err = conn.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		c.recordFailure("subscribe")
		return nil, errors.WrapTransient(err, "Client", "QueueSubscribe", "subscribe to "+subject)
	}
	c.recordSuccess("subscribe")

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// EnsureStream creates the stream or updates it to cfg.
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		c.recordFailure("ensure_stream")
		return nil, errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+cfg.Name)
	}
	c.recordSuccess("ensure_stream")
	return stream, nil
}

// PublishToStream publishes data to a JetStream subject and waits for the ack.
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	ack, err := js.Publish(ctx, subject, data)
	if err != nil {
		c.recordFailure("stream_publish")
		return nil, errors.WrapTransient(err, "Client", "PublishToStream", "publish to "+subject)
	}
	c.recordSuccess("stream_publish")
	return ack, nil
}

// KeyValue opens the bucket, creating it from cfg when it does not exist.
func (c *Client) KeyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	if kv, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		c.recordSuccess("kv_bucket")
		return kv, nil
	}

	kv, err := js.CreateKeyValue(ctx, cfg)
	if err != nil && isAlreadyExists(err) {
		kv, err = js.KeyValue(ctx, cfg.Bucket)
	}
	if err != nil {
		c.recordFailure("kv_bucket")
		return nil, errors.WrapTransient(err, "Client", "KeyValue", "open bucket "+cfg.Bucket)
	}
	c.recordSuccess("kv_bucket")
	c.logger.Info("kv bucket ready", "bucket", cfg.Bucket)
	return kv, nil
}

// ObjectStore opens the object store, creating it from cfg when it does not exist.
func (c *Client) ObjectStore(ctx context.Context, cfg jetstream.ObjectStoreConfig) (jetstream.ObjectStore, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	if store, err := js.ObjectStore(ctx, cfg.Bucket); err == nil {
		c.recordSuccess("object_store")
		return store, nil
	}

	store, err := js.CreateObjectStore(ctx, cfg)
	if err != nil && isAlreadyExists(err) {
		store, err = js.ObjectStore(ctx, cfg.Bucket)
	}
	if err != nil {
		c.recordFailure("object_store")
		return nil, errors.WrapTransient(err, "Client", "ObjectStore", "open object store "+cfg.Bucket)
	}
	c.recordSuccess("object_store")
	c.logger.Info("object store ready", "bucket", cfg.Bucket)
	return store, nil
}

func (c *Client) startHealthMonitor() {
	c.stopHealthMonitor()

	done := make(chan struct{})
	c.mu.Lock()
	c.healthDone = done
	interval := c.healthInterval
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := true
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			conn := c.Conn()
			if conn == nil {
				continue
			}
			healthy := conn.IsConnected()
			if healthy {
				if rtt, err := conn.RTT(); err != nil {
					healthy = false
				} else {
					c.metrics.observeRTT(rtt)
				}
			}
			switch {
			case healthy && c.Status() == StatusReconnecting:
				c.setStatus(StatusConnected)
			case !healthy && c.Status() == StatusConnected:
				c.setStatus(StatusReconnecting)
			}
			if healthy != last {
				c.notifyHealth(healthy)
				last = healthy
			}
		}
	}()
}

func (c *Client) stopHealthMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}

func isAlreadyExists(err error) bool {
	if stderrors.Is(err, jetstream.ErrBucketExists) || stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "already exists")
}
