// Package observability configures OpenTelemetry tracing for the service.
package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// TracerName names the tracer every span is started from.
const TracerName = "dmod"

// Supported exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config selects the exporter and sampling.
type Config struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
	// Output receives stdout exporter spans; nil means os.Stdout.
	Output io.Writer `json:"-" yaml:"-"`
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noShutdown(context.Context) error { return nil }

// Init installs the global tracer provider described by cfg. When tracing
// is disabled a no-op provider is installed.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if !cfg.Enabled || exporter == "" || exporter == ExporterNone {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noShutdown, nil
	}

	var exp sdktrace.SpanExporter
	switch exporter {
	case ExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		var err error
		exp, err = stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, errors.WrapFatal(err, "observability", "Init", "create stdout exporter")
		}
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "observability", "Init", "unknown trace exporter "+cfg.Exporter)
	}

	service := cfg.ServiceName
	if service == "" {
		service = "dmod"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(service)))
	if err != nil {
		return nil, errors.WrapFatal(err, "observability", "Init", "build resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0 || ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// StartSpan starts a span from the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
