// Package telemetry sets up OpenTelemetry tracing.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Options controls tracer setup.
type Options struct {
	Enabled     bool
	ServiceName string
	// Writer receives exported spans. Defaults to stdout.
	Writer io.Writer
}

// InitTracer installs a global tracer provider exporting to stdout. When
// tracing is disabled the global no-op provider is left in place and the
// returned shutdown does nothing.
func InitTracer(opts Options, logger *slog.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Enabled {
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.ServiceName),
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

	logger.Info("OpenTelemetry initialized", slog.String("service", opts.ServiceName))

	return tp.Shutdown, nil
}
