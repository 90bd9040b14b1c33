// Package otel configures OpenTelemetry tracing for pathways binaries.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the span exporter. Tracing stays disabled when neither
// Endpoint nor Stdout is set.
type Config struct {
	// Endpoint is an OTLP/HTTP collector URL.
	Endpoint string `env:"OTEL_ENDPOINT"`
	// Stdout writes spans as JSON to standard output.
	Stdout bool `env:"TRACE_STDOUT" envDefault:"false"`
}

// Setup registers a global tracer provider for serviceName. The returned
// shutdown function flushes pending spans and should be deferred.
func Setup(ctx context.Context, serviceName string, cfg Config) (shutdown func(context.Context) error, err error) {
	return setup(ctx, serviceName, cfg, os.Stdout)
}

func setup(ctx context.Context, serviceName string, cfg Config, stdout io.Writer) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch {
	case cfg.Endpoint != "":
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	case cfg.Stdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(stdout))
	default:
		return noop, nil
	}
	if err != nil {
		return noop, fmt.Errorf("trace exporter: %w", err)
	}
	return install(ctx, serviceName, exporter)
}

func install(ctx context.Context, serviceName string, exporter sdktrace.SpanExporter) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return func(context.Context) error { return nil }, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
