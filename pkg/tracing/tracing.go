// Package tracing provides OpenTelemetry spans for scoring requests.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/dotrep/pkg/logger"
)

const tracerName = "github.com/okian/dotrep"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Init installs a global tracer provider exporting to the OTLP/HTTP endpoint.
// An empty endpoint leaves the no-op provider in place.
func Init(ctx context.Context, endpoint string, log logger.Logger) (ShutdownFunc, error) {
	if endpoint == "" {
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("dotrep"),
			semconv.ServiceVersion("0.1.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled", logger.String("endpoint", endpoint))
	return tp.Shutdown, nil
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Attribute helpers.

func Address(addr string) attribute.KeyValue {
	return attribute.String("wallet.address", addr)
}

func Network(network string) attribute.KeyValue {
	return attribute.String("wallet.network", network)
}

func Score(score int) attribute.KeyValue {
	return attribute.Int("reputation.score", score)
}

func Source(source string) attribute.KeyValue {
	return attribute.String("provider.source", source)
}

func BatchSize(n int) attribute.KeyValue {
	return attribute.Int("batch.size", n)
}
