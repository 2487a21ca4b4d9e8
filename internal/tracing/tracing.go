// Package tracing configures OpenTelemetry tracing for the migration tool.
//
// Spans are always created, but they are only exported when OTEL_EXPORTER_OTLP_ENDPOINT is set.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"go.opentelemetry.io/otel/trace"
)

// EndpointEnv is the environment variable enabling the OTLP exporter.
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// CleanupFunc flushes and stops the tracer provider.
type CleanupFunc func()

// Init installs a global tracer provider exporting over OTLP/HTTP when the exporter endpoint is configured.
// The returned cleanup function must be called before exiting to flush pending spans.
func Init(ctx context.Context, serviceName, serviceVersion string) (CleanupFunc, error) {
	cleanup := func() {}

	if os.Getenv(EndpointEnv) == "" {
		slog.Debug("No tracing exporter configured", "env", EndpointEnv)
		return cleanup, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return cleanup, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetTracerProvider(tracerProvider)

	cleanup = func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			slog.Warn("Failed to stop tracer provider", "error", err)
		}
	}

	return cleanup, nil
}

// RecordAnyErrorAndEndSpan marks the span as failed if err is not nil, then ends it.
func RecordAnyErrorAndEndSpan(err error, span trace.Span) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// newResource returns a resource describing this application.
func newResource(serviceName, version string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	)
}
