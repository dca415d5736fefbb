// Package natsrpc answers DMOD requests arriving as NATS request/reply
// messages. Listeners in the same queue group share the load.
package natsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/NOAA-OWP/DMOD-sub000/component"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/message"
	"github.com/NOAA-OWP/DMOD-sub000/natsclient"
)

// Handler produces the response for one raw request.
type Handler interface {
	Handle(ctx context.Context, raw []byte) *message.Response
}

// Subscriber is the part of *natsclient.Client the listener needs.
type Subscriber interface {
	QueueSubscribe(ctx context.Context, subject, queue string, handler natsclient.MsgHandler) (*nats.Subscription, error)
}

var _ component.LifecycleComponent = (*Listener)(nil)

// Listener subscribes to the request subject and replies with the
// response envelope.
type Listener struct {
	client  Subscriber
	subject string
	queue   string
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	sub       *nats.Subscription
	started   atomic.Bool
	startTime time.Time
	inflight  sync.WaitGroup

	handled    atomic.Int64
	errorCount atomic.Int64
	lastError  atomic.Value // string
}

// NewListener creates a listener on subject within queue group queue.
func NewListener(client Subscriber, subject, queue string, handler Handler, logger *slog.Logger) (*Listener, error) {
	if client == nil || handler == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("client and handler are required"),
			"natsrpc", "NewListener", "validate dependencies")
	}
	if subject == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("empty subject"), "natsrpc", "NewListener", "validate subject")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		client:  client,
		subject: subject,
		queue:   queue,
		handler: handler,
		logger:  logger.With("component", "natsrpc", "subject", subject),
	}, nil
}

func (l *Listener) Meta() component.Metadata {
	return component.Metadata{
		Name:        "natsrpc",
		Type:        "transport",
		Description: "NATS request/reply channel on " + l.subject,
		Version:     "1.0.0",
	}
}

func (l *Listener) Health() component.HealthStatus {
	started := l.started.Load()
	var uptime time.Duration
	if started {
		uptime = time.Since(l.startTime)
	}
	lastErr, _ := l.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    started,
		LastCheck:  time.Now(),
		ErrorCount: int(l.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

// Handled reports how many requests have been answered.
func (l *Listener) Handled() int64 {
	return l.handled.Load()
}

func (l *Listener) Initialize() error {
	return nil
}

// Start subscribes. Messages are handled until Stop or ctx ends.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started.Load() {
		return errors.WrapInvalid(fmt.Errorf("listener already started"), "natsrpc", "Start", "check state")
	}
	sub, err := l.client.QueueSubscribe(ctx, l.subject, l.queue, l.onMessage)
	if err != nil {
		return errors.Wrap(err, "natsrpc", "Start", "subscribe")
	}
	l.sub = sub
	l.startTime = time.Now()
	l.started.Store(true)
	l.logger.Info("Listening for requests", "queue", l.queue)
	return nil
}

// Stop drains the subscription and waits for in-flight requests.
func (l *Listener) Stop(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started.Load() {
		return nil
	}
	l.started.Store(false)
	if l.sub != nil {
		if err := l.sub.Drain(); err != nil && err != nats.ErrConnectionClosed {
			l.logger.Warn("Drain failed, unsubscribing", "error", err)
			_ = l.sub.Unsubscribe()
		}
	}

	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("timeout after %v", timeout), "natsrpc", "Stop", "wait for in-flight requests")
	}
}

func (l *Listener) onMessage(ctx context.Context, msg *nats.Msg) {
	l.inflight.Add(1)
	defer l.inflight.Done()

	resp := l.handler.Handle(ctx, msg.Data)
	l.handled.Add(1)
	if msg.Reply == "" {
		l.logger.Debug("Request without reply subject dropped", "reason", resp.Reason)
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		l.trackError(errors.WrapFatal(err, "natsrpc", "onMessage", "encode response"))
		return
	}
	if err := msg.Respond(data); err != nil {
		l.trackError(errors.WrapTransient(err, "natsrpc", "onMessage", "respond"))
	}
}

func (l *Listener) trackError(err error) {
	l.errorCount.Add(1)
	l.lastError.Store(err.Error())
	l.logger.Warn("Request reply failed", "error", err)
}
