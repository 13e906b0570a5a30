// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

// Options configures InitTracer.
type Options struct {
	ServiceName string
	// Enabled false leaves the global no-op provider in place.
	Enabled bool
	// Writer receives exported spans. Defaults to stderr so command output
	// on stdout stays clean.
	Writer io.Writer
	// Sync exports each span as it ends instead of batching.
	Sync bool
}

// InitTracer initializes OpenTelemetry tracing.
func InitTracer(opts Options, logger *slog.Logger) (ShutdownFunc, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
	if err != nil {
		return nil, errors.Wrap(err, "create span exporter")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build telemetry resource")
	}

	var processor sdktrace.TracerProviderOption
	if opts.Sync {
		processor = sdktrace.WithSyncer(exporter)
	} else {
		processor = sdktrace.WithBatcher(exporter)
	}
	tp := sdktrace.NewTracerProvider(processor, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", slog.String("service", opts.ServiceName))
	return tp.Shutdown, nil
}
