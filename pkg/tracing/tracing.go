// Package tracing sets up OpenTelemetry tracing for vaultprops and provides
// span helpers and HTTP instrumentation.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the OTLP/HTTP collector and the resource attributes
// stamped on every span.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the collector host:port, e.g. "localhost:4318".
	Endpoint string
	Insecure bool
	// SampleRate is the fraction of root spans kept, from 0 to 1.
	SampleRate  float64
	Environment string
	// Enabled turns export on. Without it, or without an endpoint, spans
	// go to the global no-op provider.
	Enabled bool
}

const instrumentationName = "github.com/conductor/vaultprops"

// Tracer owns the exporting tracer provider so it can be flushed on exit.
type Tracer struct {
	provider *sdktrace.TracerProvider
}

// InitTracer installs a batching OTLP/HTTP tracer provider and the W3C
// propagators as the process-wide defaults.
func InitTracer(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return &Tracer{}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(cfg.SampleRate))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{provider: provider}, nil
}

func newResource(cfg Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		semconv.TelemetrySDKLanguageGo,
	)
}

func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a new span using the global tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// AddSpanAttributes sets attributes on the span carried by ctx.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError records err on the span carried by ctx and marks it failed.
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace ID carried by ctx, or "" outside a trace.
// Error responses echo it so callers can find the failing refresh.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// WithAttributes is trace.WithAttributes, re-exported so callers need
// only this package.
func WithAttributes(attrs ...attribute.KeyValue) trace.SpanStartOption {
	return trace.WithAttributes(attrs...)
}

// Attribute keys used on vaultprops spans.
var (
	// AttrRefreshID identifies one refresh cycle.
	AttrRefreshID = attribute.Key("vaultprops.refresh.id")
	// AttrRefreshMode is the discovery mode, enumerate or targeted.
	AttrRefreshMode = attribute.Key("vaultprops.refresh.mode")
	// AttrRefreshTrigger is what started the refresh: initial, scheduled or manual.
	AttrRefreshTrigger = attribute.Key("vaultprops.refresh.trigger")
	// AttrSecretCount is the number of secrets in a published snapshot.
	AttrSecretCount = attribute.Key("vaultprops.secret.count")
	// AttrSecretName is a vault secret name. Never a value.
	AttrSecretName = attribute.Key("vaultprops.secret.name")
	// AttrVaultUp is the outcome of a vault probe.
	AttrVaultUp = attribute.Key("vaultprops.vault.up")
)
