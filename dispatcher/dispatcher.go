// Package dispatcher routes decoded DMOD messages to their handlers and
// turns every outcome into a response envelope.
//
// A message ends in exactly one of two states: a success response or a
// failure response. Unknown or missing event types get the dedicated
// unsupported response, handler errors are converted by their taxonomy
// kind, and a panicking handler fails only its own request.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/message"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/observability"
)

// DefaultListenerType is reported to clients that send unsupported messages.
const DefaultListenerType = "DMOD_REQUEST_DISPATCHER"

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	table    *Table
	listener string
	logger   *slog.Logger
	metrics  *Metrics
	registry *metric.MetricsRegistry
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics registers dispatcher metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Dispatcher) {
		d.registry = registry
	}
}

// WithListenerType sets the listener name echoed in unsupported responses.
func WithListenerType(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.listener = name
		}
	}
}

// New creates a dispatcher serving the standard handlers over deps.
func New(deps Dependencies, opts ...Option) *Dispatcher {
	d := newDispatcher(NewTable(), opts...)
	registerHandlers(d.table, deps, d.logger, d.metrics)
	return d
}

// NewWithTable creates a dispatcher over a caller-built table.
func NewWithTable(table *Table, opts ...Option) *Dispatcher {
	return newDispatcher(table, opts...)
}

func newDispatcher(table *Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:    table,
		listener: DefaultListenerType,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	d.metrics = newMetrics(d.registry, "dispatcher")
	return d
}

// Table returns the dispatcher's routing table.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Handle produces the response for one raw message. It never panics.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *message.Response {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "dispatcher.handle")
	defer span.End()

	header, err := message.ReadHeader(raw)
	var resp *message.Response
	switch {
	case err != nil:
		resp = message.FromError(err)
	case !header.EventType.Known():
		resp = message.UnsupportedMessageType(header.RawEventType, d.listener)
	default:
		resp = d.invoke(ctx, header, raw)
	}

	span.SetAttributes(
		attribute.String("dmod.event_type", header.EventType.String()),
		attribute.String("dmod.action", string(header.Action)),
		attribute.Bool("dmod.success", resp.Success),
		attribute.String("dmod.reason", resp.Reason),
	)
	if !resp.Success {
		span.SetStatus(codes.Error, resp.Reason)
	}
	d.metrics.recordRequest(header, resp.Success, time.Since(start))

	if resp.Success {
		d.logger.Debug("request handled", "event_type", header.EventType, "action", header.Action, "reason", resp.Reason)
	} else {
		d.logger.Warn("request failed", "event_type", header.RawEventType, "action", header.Action,
			"reason", resp.Reason, "message", resp.Message)
	}
	return resp
}

func (d *Dispatcher) invoke(ctx context.Context, header message.Header, raw []byte) (resp *message.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.recordPanic()
			d.logger.Error("handler panic", "event_type", header.EventType, "action", header.Action,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			resp = message.Failure(message.ReasonInternal, "the request could not be completed due to an internal error")
		}
	}()

	handler, ok := d.table.Lookup(header)
	if !ok {
		return message.Failure(message.ReasonNoHandler,
			fmt.Sprintf("no handler is registered for %s messages", header.EventType))
	}

	if err := message.Validate(header.EventType, raw); err != nil {
		return d.failure(header, err)
	}

	resp, err := handler(ctx, &Request{Header: header, Raw: raw})
	if err != nil {
		return d.failure(header, err)
	}
	if resp == nil {
		d.logger.Error("handler returned no response", "event_type", header.EventType, "action", header.Action)
		return message.Failure(message.ReasonInternal, "the request could not be completed due to an internal error")
	}
	return resp
}

func (d *Dispatcher) failure(header message.Header, err error) *message.Response {
	if errors.KindOf(err) == errors.KindInternal {
		d.logger.Error("handler error", "event_type", header.EventType, "action", header.Action, "error", err)
	}
	return message.FromError(err)
}
