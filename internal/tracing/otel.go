package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerMu sync.Mutex
	provider   *sdktrace.TracerProvider
)

// Options configures the process tracer provider.
type Options struct {
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
	Exporter       sdktrace.SpanExporter
}

// InitOpenTelemetry installs a tracer provider as the global one. A second
// call is a no-op until ShutdownOpenTelemetry runs.
func InitOpenTelemetry(opts Options) error {
	providerMu.Lock()
	defer providerMu.Unlock()

	if provider != nil {
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	}
	if opts.Exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(opts.Exporter))
	}

	provider = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(provider)
	return nil
}

// ShutdownOpenTelemetry flushes and shuts down the global tracer provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	provider = nil
	providerMu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span and copies its trace id into the context when none is set.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}

// ForceFlush exports any buffered spans.
func ForceFlush(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	providerMu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.ForceFlush(ctx)
}

// NewOTLPExporter builds an OTLP/HTTP span exporter for endpoint, a full
// collector URL such as http://localhost:4318/v1/traces.
func NewOTLPExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
}
